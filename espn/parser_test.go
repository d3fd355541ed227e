package espn

import (
	"testing"

	"livereport-service/pkg/models"
)

const samplePayload = `{
	"date": "2026-03-14T02:30Z",
	"competitions": [{
		"status": {"type": {"name": "STATUS_IN_PROGRESS"}},
		"venue": {"fullName": "Lumen Field"},
		"competitors": [
			{"id": "9726", "homeAway": "home", "score": "2", "form": "WWDLW",
			 "team": {"id": "9726", "displayName": "Seattle Sounders FC", "abbreviation": "SEA"}},
			{"id": "9723", "homeAway": "away", "score": "1", "form": "LDWWL",
			 "team": {"id": "9723", "displayName": "Portland Timbers", "abbreviation": "POR"}}
		],
		"details": [
			{"type": {"text": "Goal"}, "text": "Goal! Seattle Sounders FC 1, Portland Timbers 0",
			 "clock": {"displayValue": "23'"}, "team": {"id": "9726"},
			 "athletesInvolved": [{"id": "101", "displayName": "Jordan Morris"}]},
			{"type": {"text": "Yellow Card"}, "text": "Booking",
			 "clock": {"displayValue": "41'"}, "team": {"id": "9723"},
			 "athletesInvolved": [{"id": "202", "displayName": "Diego Chara"}]},
			{"type": {"text": "Substitution"}, "text": "Substitution",
			 "clock": {"displayValue": "60'"}, "team": {"id": "9726"},
			 "athletesInvolved": [
				 {"id": "303", "displayName": "Danny Musovski"},
				 {"id": "101", "displayName": "Jordan Morris"}
			 ]}
		]
	}]
}`

func TestParseSnapshot(t *testing.T) {
	snapshot, err := ParseSnapshot("740312", "usa.1", []byte(samplePayload))
	if err != nil {
		t.Fatalf("ParseSnapshot returned error: %v", err)
	}

	if snapshot.Phase != models.PhaseInProgress {
		t.Errorf("phase = %q, want %q", snapshot.Phase, models.PhaseInProgress)
	}
	if snapshot.Score != "2-1" {
		t.Errorf("score = %q, want 2-1", snapshot.Score)
	}
	if snapshot.HomeTeam.Name != "Seattle Sounders FC" || !snapshot.HomeTeam.IsHome {
		t.Errorf("unexpected home team: %+v", snapshot.HomeTeam)
	}
	if snapshot.AwayTeam.ID != "9723" {
		t.Errorf("away team id = %q, want 9723", snapshot.AwayTeam.ID)
	}
	if snapshot.Venue != "Lumen Field" {
		t.Errorf("venue = %q", snapshot.Venue)
	}
	if snapshot.HomeForm != "WWDLW" {
		t.Errorf("home form = %q", snapshot.HomeForm)
	}
	if len(snapshot.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(snapshot.Events))
	}

	goal := snapshot.Events[0]
	if goal.Kind != models.KindGoal {
		t.Errorf("event 0 kind = %q, want goal", goal.Kind)
	}
	if goal.AthleteName != "Jordan Morris" || goal.Clock != "23'" {
		t.Errorf("unexpected goal event: %+v", goal)
	}
	if goal.Goal == nil || goal.Goal.Penalty || goal.Goal.OwnGoal {
		t.Errorf("unexpected goal detail: %+v", goal.Goal)
	}

	card := snapshot.Events[1]
	if card.Kind != models.KindYellowCard || card.Card == nil || card.Card.Red {
		t.Errorf("unexpected card event: %+v", card)
	}

	sub := snapshot.Events[2]
	if sub.Kind != models.KindSubstitution || sub.Substitution == nil {
		t.Fatalf("unexpected substitution event: %+v", sub)
	}
	if sub.Substitution.PlayerInName != "Danny Musovski" {
		t.Errorf("player in = %q", sub.Substitution.PlayerInName)
	}
	if sub.Substitution.PlayerOutName != "Jordan Morris" {
		t.Errorf("player out = %q", sub.Substitution.PlayerOutName)
	}
}

func TestParseSnapshotNeutralDefaults(t *testing.T) {
	payload := `{"competitions": [{"competitors": [
		{"id": "1", "team": {}},
		{"id": "2", "team": {}}
	]}]}`

	snapshot, err := ParseSnapshot("1", "usa.1", []byte(payload))
	if err != nil {
		t.Fatalf("ParseSnapshot returned error: %v", err)
	}

	if snapshot.Phase != models.PhaseScheduled {
		t.Errorf("phase = %q, want scheduled default", snapshot.Phase)
	}
	if snapshot.Score != "0-0" {
		t.Errorf("score = %q, want 0-0", snapshot.Score)
	}
	if snapshot.HomeTeam.Name != "Unknown" || snapshot.AwayTeam.Name != "Unknown" {
		t.Errorf("team names = %q / %q, want Unknown", snapshot.HomeTeam.Name, snapshot.AwayTeam.Name)
	}
}

func TestParseSnapshotNoCompetitors(t *testing.T) {
	if _, err := ParseSnapshot("1", "usa.1", []byte(`{"competitions": [{}]}`)); err == nil {
		t.Fatal("expected error when no competitors present")
	}
	if _, err := ParseSnapshot("1", "usa.1", []byte(`{}`)); err == nil {
		t.Fatal("expected error when payload is empty")
	}
}

func TestParseSnapshotOrderFallback(t *testing.T) {
	payload := `{"competitions": [{"competitors": [
		{"id": "1", "score": "3", "team": {"id": "1", "displayName": "First"}},
		{"id": "2", "score": "0", "team": {"id": "2", "displayName": "Second"}}
	]}]}`

	snapshot, err := ParseSnapshot("1", "usa.1", []byte(payload))
	if err != nil {
		t.Fatalf("ParseSnapshot returned error: %v", err)
	}
	if snapshot.HomeTeam.Name != "First" || snapshot.AwayTeam.Name != "Second" {
		t.Errorf("order fallback failed: home=%q away=%q", snapshot.HomeTeam.Name, snapshot.AwayTeam.Name)
	}
}
