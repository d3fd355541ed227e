package commentary

import (
	"fmt"
	"math/rand"
	"strings"

	"livereport-service/pkg/models"
)

// Fallback templates per event flavor. Placeholders are substituted with
// snapshot data; a template never fails to render.
var fallbackTemplates = map[models.EventKind][]string{
	models.KindGoal: {
		"⚽ GOAL! {athlete} finds the net at {clock}! {home} {score} {away}",
		"⚽ {athlete} scores at {clock}! It's {home} {score} {away}",
	},
	models.KindOwnGoal: {
		"⚽ Own goal at {clock}! {home} {score} {away}",
	},
	models.KindPenaltyGoal: {
		"⚽ {athlete} converts from the spot at {clock}! {home} {score} {away}",
	},
	models.KindPenaltyMiss: {
		"❌ Penalty missed by {athlete} at {clock}! Still {home} {score} {away}",
	},
	models.KindPenaltySave: {
		"🧤 Penalty saved at {clock}! {athlete} is denied! {home} {score} {away}",
	},
	models.KindYellowCard: {
		"🟨 Yellow card for {athlete} at {clock}",
	},
	models.KindRedCard: {
		"🟥 RED CARD! {athlete} is sent off at {clock}!",
	},
	models.KindSecondYellow: {
		"🟥 Second yellow for {athlete} at {clock} — off they go!",
	},
	models.KindSubstitution: {
		"🔄 Substitution at {clock}: {player_in} replaces {player_out}",
	},
	models.KindVARReview: {
		"📺 VAR review underway at {clock}...",
	},
	models.KindAddedTime: {
		"⏱️ {detail}",
	},
	models.KindOther: {
		"📣 {clock}: {detail}",
	},
}

var preMatchTemplates = []string{
	"🔥 Match day! {home} host {away} at {venue}. Kickoff coming up!",
	"⚽ Almost time! {home} vs {away} — follow the action right here!",
}

var finalTemplates = []string{
	"🏁 Full time: {home} {score} {away}",
	"🏁 That's the final whistle! {home} {score} {away}",
}

// renderFallback fills a template picked for the event. Kickoff and other
// status flips use fixed status lines instead.
func renderFallback(snapshot *models.MatchSnapshot, event *models.DomainEvent) string {
	templates, ok := fallbackTemplates[event.Kind]
	if !ok || len(templates) == 0 {
		templates = fallbackTemplates[models.KindOther]
	}
	tpl := templates[rand.Intn(len(templates))]

	athlete := event.AthleteName
	if athlete == "" {
		athlete = "the attacker"
	}
	clock := event.Clock
	if clock == "" {
		clock = "now"
	}
	detail := event.Description
	if detail == "" {
		detail = string(event.Kind)
	}

	replacer := strings.NewReplacer(
		"{athlete}", athlete,
		"{clock}", clock,
		"{score}", snapshot.Score,
		"{home}", snapshot.HomeTeam.Name,
		"{away}", snapshot.AwayTeam.Name,
		"{detail}", detail,
		"{player_in}", subName(event, true),
		"{player_out}", subName(event, false),
	)

	return replacer.Replace(tpl)
}

func renderPreMatch(snapshot *models.MatchSnapshot) string {
	tpl := preMatchTemplates[rand.Intn(len(preMatchTemplates))]
	venue := snapshot.Venue
	if venue == "" {
		venue = "the stadium"
	}
	return strings.NewReplacer(
		"{home}", snapshot.HomeTeam.Name,
		"{away}", snapshot.AwayTeam.Name,
		"{venue}", venue,
	).Replace(tpl)
}

func renderFinal(snapshot *models.MatchSnapshot) string {
	tpl := finalTemplates[rand.Intn(len(finalTemplates))]
	return strings.NewReplacer(
		"{home}", snapshot.HomeTeam.Name,
		"{away}", snapshot.AwayTeam.Name,
		"{score}", snapshot.Score,
	).Replace(tpl)
}

// StatusLine is the fixed message for a phase transition
func StatusLine(snapshot *models.MatchSnapshot, toPhase string) string {
	switch toPhase {
	case models.PhaseInProgress:
		return fmt.Sprintf("⚽ Kickoff! %s vs %s is underway!", snapshot.HomeTeam.Name, snapshot.AwayTeam.Name)
	case models.PhaseHalftime:
		return fmt.Sprintf("⏸️ Halftime: %s %s %s", snapshot.HomeTeam.Name, snapshot.Score, snapshot.AwayTeam.Name)
	case models.PhaseSecondHalf:
		return "▶️ The second half is underway!"
	case models.PhaseExtraTime:
		return fmt.Sprintf("⏱️ We're going to extra time! %s %s %s", snapshot.HomeTeam.Name, snapshot.Score, snapshot.AwayTeam.Name)
	case models.PhaseShootout:
		return "🎯 Penalty shootout time!"
	case models.PhaseAbandoned:
		return "⚠️ The match has been abandoned."
	case models.PhaseCancelled:
		return "⚠️ The match has been cancelled."
	}
	if models.IsTerminalPhase(toPhase) {
		return renderFinal(snapshot)
	}
	return fmt.Sprintf("📣 Match status: %s %s %s", snapshot.HomeTeam.Name, snapshot.Score, snapshot.AwayTeam.Name)
}

func subName(event *models.DomainEvent, in bool) string {
	if event.Substitution == nil {
		return "a player"
	}
	name := event.Substitution.PlayerOutName
	if in {
		name = event.Substitution.PlayerInName
	}
	if name == "" {
		return "a player"
	}
	return name
}
