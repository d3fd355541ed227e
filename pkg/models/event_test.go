package models

import "testing"

func TestDedupKeyStableAcrossProviderIDs(t *testing.T) {
	// Same goal seen on two polls; the provider renumbered the event id.
	first := DomainEvent{
		EventID:     "x1",
		Kind:        KindGoal,
		Clock:       "45'",
		AthleteName: "Jordan Morris",
	}
	second := DomainEvent{
		EventID:     "x2",
		Kind:        KindGoal,
		Clock:       "45'",
		AthleteName: "Jordan Morris",
	}

	if first.DedupKey() != second.DedupKey() {
		t.Errorf("Expected identical keys for renumbered event, got %q vs %q",
			first.DedupKey(), second.DedupKey())
	}
}

func TestDedupKeyDistinguishesEvents(t *testing.T) {
	base := DomainEvent{Kind: KindGoal, Clock: "45'", AthleteName: "Jordan Morris"}

	differentClock := base
	differentClock.Clock = "67'"
	if base.DedupKey() == differentClock.DedupKey() {
		t.Error("Expected different keys for different clocks")
	}

	differentKind := base
	differentKind.Kind = KindYellowCard
	if base.DedupKey() == differentKind.DedupKey() {
		t.Error("Expected different keys for different kinds")
	}

	differentAthlete := base
	differentAthlete.AthleteName = "Albert Rusnak"
	if base.DedupKey() == differentAthlete.DedupKey() {
		t.Error("Expected different keys for different athletes")
	}
}

func TestDedupKeyCallableOnValue(t *testing.T) {
	// Key derivation must work on plain event values, including ones
	// returned straight from a constructor-style helper.
	make := func() DomainEvent {
		return DomainEvent{Kind: KindGoal, Clock: "55'", AthleteName: "Albert Rusnak"}
	}

	if make().DedupKey() == "" {
		t.Error("Expected non-empty key from an unaddressable event value")
	}
	if make().DedupKey() != make().DedupKey() {
		t.Error("Expected deterministic key from equal event values")
	}
}

func TestDedupKeyNormalizesCase(t *testing.T) {
	a := DomainEvent{Kind: KindGoal, Clock: "45'", AthleteName: "Jordan  Morris"}
	b := DomainEvent{Kind: KindGoal, Clock: "45'", AthleteName: "jordan morris"}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("Expected normalized keys to match, got %q vs %q", a.DedupKey(), b.DedupKey())
	}
}

func TestStatusDedupKey(t *testing.T) {
	ev := DomainEvent{
		Kind:         KindStatusChange,
		StatusChange: &StatusChangeDetail{From: PhaseScheduled, To: PhaseInProgress},
	}

	if ev.DedupKey() != StatusDedupKey(PhaseInProgress) {
		t.Errorf("Expected status event key derived from target phase, got %q", ev.DedupKey())
	}
	if StatusDedupKey(PhaseInProgress) == StatusDedupKey(PhaseHalftime) {
		t.Error("Expected different keys for different phases")
	}
}

func TestClassifyEventType(t *testing.T) {
	cases := []struct {
		typeText string
		body     string
		want     EventKind
	}{
		{"Goal", "GOAL! Jordan Morris finds the net!", KindGoal},
		{"Own Goal", "Own goal by defender", KindOwnGoal},
		{"Penalty - Scored", "converts from the spot", KindPenaltyGoal},
		{"Penalty - Missed", "sends it wide, missed", KindPenaltyMiss},
		{"Penalty - Saved", "saved by the keeper", KindPenaltySave},
		{"Yellow Card", "booking for a late tackle", KindYellowCard},
		{"Red Card", "red card shown", KindRedCard},
		{"Yellow Card", "second yellow, he is off", KindSecondYellow},
		{"Substitution", "substitution for the hosts", KindSubstitution},
		{"Added Time", "four minutes added", KindAddedTime},
		{"VAR", "video review under way", KindVARReview},
		{"Corner", "corner kick", KindOther},
	}

	for _, tc := range cases {
		got := ClassifyEventType(tc.typeText, tc.body)
		if got != tc.want {
			t.Errorf("ClassifyEventType(%q, %q) = %s, want %s", tc.typeText, tc.body, got, tc.want)
		}
	}
}

func TestIsTerminalPhase(t *testing.T) {
	terminals := []string{PhaseFinal, PhaseFullTime, PhaseFinalExtraTime, PhaseFinalPenalties, PhaseAbandoned, PhaseCancelled}
	for _, p := range terminals {
		if !IsTerminalPhase(p) {
			t.Errorf("Expected %s to be terminal", p)
		}
	}

	for _, p := range []string{PhaseScheduled, PhaseInProgress, PhaseHalftime, PhaseExtraTime, PhaseShootout} {
		if IsTerminalPhase(p) {
			t.Errorf("Expected %s not to be terminal", p)
		}
	}
}
