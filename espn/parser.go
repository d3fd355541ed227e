package espn

import (
	"fmt"
	"time"

	"livereport-service/pkg/common"
	"livereport-service/pkg/models"
)

// ParseSnapshot converts a raw scoreboard payload into a normalized match
// snapshot. Missing fields fall back to neutral defaults; parsing fails only
// when both competitor blocks are absent, which leaves nothing to report on.
func ParseSnapshot(matchID, competition string, body []byte) (*models.MatchSnapshot, error) {
	sb, err := decodeScoreboard(body)
	if err != nil {
		return nil, err
	}

	var comp Competition
	if len(sb.Competitions) > 0 {
		comp = sb.Competitions[0]
	}

	home, away, found := splitCompetitors(comp.Competitors)
	if !found {
		return nil, common.NewAppError("PARSE_FAILED",
			fmt.Sprintf("scoreboard for match %s carries no competitors", matchID), nil)
	}

	phase := comp.Status.Type.Name
	if phase == "" {
		phase = models.PhaseScheduled
	}

	snapshot := &models.MatchSnapshot{
		MatchID:     matchID,
		Competition: competition,
		Phase:       phase,
		HomeTeam:    parseTeam(home, true),
		AwayTeam:    parseTeam(away, false),
		Venue:       comp.Venue.FullName,
		HomeForm:    home.Form,
		AwayForm:    away.Form,
		AsOf:        time.Now().UTC(),
	}
	snapshot.Score = snapshot.HomeTeam.Score + "-" + snapshot.AwayTeam.Score

	snapshot.Events = make([]models.DomainEvent, 0, len(comp.Details))
	for i, detail := range comp.Details {
		snapshot.Events = append(snapshot.Events, parseEvent(i, detail))
	}

	return snapshot, nil
}

// splitCompetitors picks the home and away sides out of the competitor list.
// When homeAway markers are missing the first entry is treated as home.
func splitCompetitors(competitors []Competitor) (home, away Competitor, ok bool) {
	if len(competitors) == 0 {
		return home, away, false
	}

	assigned := false
	for _, c := range competitors {
		switch c.HomeAway {
		case "home":
			home = c
			assigned = true
		case "away":
			away = c
			assigned = true
		}
	}
	if !assigned {
		home = competitors[0]
		if len(competitors) > 1 {
			away = competitors[1]
		}
	}

	return home, away, true
}

func parseTeam(c Competitor, isHome bool) models.TeamInfo {
	name := c.Team.DisplayName
	if name == "" {
		name = "Unknown"
	}
	score := c.Score
	if score == "" {
		score = "0"
	}

	return models.TeamInfo{
		ID:        c.Team.ID,
		Name:      name,
		ShortName: c.Team.Abbreviation,
		Score:     score,
		Logo:      c.Team.Logo,
		IsHome:    isHome,
	}
}

// parseEvent normalizes one raw detail entry. The synthesized event id is
// positional and only kept for logging; dedup never relies on it.
func parseEvent(index int, d Detail) models.DomainEvent {
	kind := models.ClassifyEventType(d.Type.Text, d.Text)

	event := models.DomainEvent{
		EventID:     fmt.Sprintf("d%d", index),
		Kind:        kind,
		TypeText:    d.Type.Text,
		Description: d.Text,
		Clock:       d.Clock.DisplayValue,
		TeamID:      d.Team.ID,
	}

	if len(d.AthletesInvolved) > 0 {
		event.AthleteID = d.AthletesInvolved[0].ID
		event.AthleteName = d.AthletesInvolved[0].DisplayName
	}

	switch {
	case kind.IsGoal():
		event.Goal = &models.GoalDetail{
			Penalty: kind == models.KindPenaltyGoal,
			OwnGoal: kind == models.KindOwnGoal,
		}
	case kind.IsCard():
		event.Card = &models.CardDetail{
			Red:          kind == models.KindRedCard || kind == models.KindSecondYellow,
			SecondYellow: kind == models.KindSecondYellow,
		}
	case kind == models.KindSubstitution:
		sub := &models.SubstitutionDetail{}
		// ESPN lists the entering player first, the leaving player second
		if len(d.AthletesInvolved) > 0 {
			sub.PlayerInID = d.AthletesInvolved[0].ID
			sub.PlayerInName = d.AthletesInvolved[0].DisplayName
		}
		if len(d.AthletesInvolved) > 1 {
			sub.PlayerOutID = d.AthletesInvolved[1].ID
			sub.PlayerOutName = d.AthletesInvolved[1].DisplayName
		}
		event.Substitution = sub
	}

	event.Raw = map[string]interface{}{
		"type":  d.Type.Text,
		"text":  d.Text,
		"clock": d.Clock.DisplayValue,
	}

	return event
}
