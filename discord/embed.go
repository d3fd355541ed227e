package discord

import (
	"time"

	"livereport-service/pkg/models"
)

// Embed colors per update flavor
const (
	colorGoal   = 0x2ECC71 // green
	colorCard   = 0xE67E22 // orange
	colorRed    = 0xE74C3C // red
	colorStatus = 0x3498DB // blue
	colorFinal  = 0x95A5A6 // gray
	colorHype   = 0x5CB85C // sounders green
)

// Embed is the Discord message embed payload
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is a titled field inside an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the embed footer line
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedImage is an image reference inside an embed
type EmbedImage struct {
	URL string `json:"url"`
}

// EmbedForUpdate builds the embed attached to a match update message
func EmbedForUpdate(update *models.MatchUpdate, snapshot *models.MatchSnapshot) *Embed {
	embed := &Embed{
		Title:       snapshot.HomeTeam.Name + " vs " + snapshot.AwayTeam.Name,
		Description: update.Commentary,
		Color:       embedColor(update),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "Score", Value: update.Score, Inline: true},
		},
	}

	if update.Event != nil && update.Event.Clock != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Clock", Value: update.Event.Clock, Inline: true})
	}
	if snapshot.Venue != "" {
		embed.Footer = &EmbedFooter{Text: snapshot.Venue}
	}
	if snapshot.HomeTeam.Logo != "" {
		embed.Thumbnail = &EmbedImage{URL: snapshot.HomeTeam.Logo}
	}

	return embed
}

func embedColor(update *models.MatchUpdate) int {
	switch update.Type {
	case models.UpdateTypeGoal:
		return colorGoal
	case models.UpdateTypeCard:
		if update.Event != nil && update.Event.Card != nil && update.Event.Card.Red {
			return colorRed
		}
		return colorCard
	case models.UpdateTypeFinal:
		return colorFinal
	case models.UpdateTypePreMatchHype:
		return colorHype
	}
	return colorStatus
}
