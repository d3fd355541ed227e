// Package commentary turns match events into short fan-voiced lines. An
// OpenAI-compatible chat endpoint supplies the flavor text; template
// fallbacks guarantee that generation never fails and never blocks a post.
package commentary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/retry"

	"livereport-service/logger"
	"livereport-service/pkg/breaker"
	"livereport-service/pkg/models"
)

const (
	// DefaultTimeout is the hard deadline for one model call
	DefaultTimeout = 5 * time.Second

	// modelAttempts is the retry budget per model call
	modelAttempts = 2

	// maxCommentaryLen trims runaway model output
	maxCommentaryLen = 500
)

// Config holds the configuration for the commentary generator
type Config struct {
	APIKey           string
	Model            string
	BaseURL          string
	Timeout          time.Duration
	Enabled          bool
	PromptAPIBaseURL string
	TeamID           string
	TeamName         string
	RivalNames       []string
}

// Generator produces commentary for match updates
type Generator struct {
	cfg        Config
	httpClient *http.Client
	breaker    *breaker.Breaker
	contexts   *contextBuffer
}

// NewGenerator creates a commentary generator guarded by the given breaker
func NewGenerator(cfg Config, brk *breaker.Breaker) *Generator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    brk,
		contexts:   newContextBuffer(),
	}
}

// Generate returns commentary for one update. It never returns an error:
// when the model is disabled, the breaker is open, or the call fails, the
// template fallback is used instead.
func (g *Generator) Generate(ctx context.Context, snapshot *models.MatchSnapshot, event *models.DomainEvent, updateType models.UpdateType) string {
	fallback := g.fallbackFor(snapshot, event, updateType)

	if !g.cfg.Enabled || g.cfg.APIKey == "" {
		g.contexts.Add(snapshot.MatchID, fallback)
		return fallback
	}
	if !g.breaker.CanExecute() {
		logger.Printf("[Commentary] ⚠️ Circuit breaker open, using template fallback")
		g.contexts.Add(snapshot.MatchID, fallback)
		return fallback
	}

	system, prompt := g.buildPrompt(snapshot, event, updateType)

	line, err := g.callModel(ctx, system, prompt)
	if err != nil {
		g.breaker.RecordFailure()
		logger.Errorf("[Commentary] ❌ Model call failed, using fallback: %v", err)
		g.contexts.Add(snapshot.MatchID, fallback)
		return fallback
	}

	g.breaker.RecordSuccess()
	g.contexts.Add(snapshot.MatchID, line)
	return line
}

// EndMatch releases per-match history after the final update is posted
func (g *Generator) EndMatch(matchID string) {
	g.contexts.Forget(matchID)
}

// HealthCheck probes the model with a minimal completion. A disabled
// generator is always healthy: posting falls back to templates anyway.
func (g *Generator) HealthCheck(ctx context.Context) bool {
	if !g.cfg.Enabled || g.cfg.APIKey == "" {
		return true
	}

	payload := chatRequest{
		Model:     g.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// fallbackFor picks the template line for an update
func (g *Generator) fallbackFor(snapshot *models.MatchSnapshot, event *models.DomainEvent, updateType models.UpdateType) string {
	switch updateType {
	case models.UpdateTypePreMatchHype:
		return renderPreMatch(snapshot)
	case models.UpdateTypeFinal:
		return renderFinal(snapshot)
	case models.UpdateTypeStatusChange:
		to := snapshot.Phase
		if event != nil && event.StatusChange != nil {
			to = event.StatusChange.To
		}
		return StatusLine(snapshot, to)
	}
	if event == nil {
		return StatusLine(snapshot, snapshot.Phase)
	}
	return renderFallback(snapshot, event)
}

// buildPrompt assembles the system instruction and the user prompt for
// one update
func (g *Generator) buildPrompt(snapshot *models.MatchSnapshot, event *models.DomainEvent, updateType models.UpdateType) (system, prompt string) {
	persona := g.remotePersona()
	if persona == "" {
		persona = fmt.Sprintf("You are an excited %s supporter posting short live-match updates in a fan chat.", g.cfg.TeamName)
	}

	var sb strings.Builder

	opponent := g.opponentOf(snapshot)
	if g.isRival(opponent) {
		sb.WriteString(fmt.Sprintf("This is a heated rivalry match against %s. Lean into the rivalry.\n", opponent))
	}

	sb.WriteString(fmt.Sprintf("Match: %s vs %s, score %s, status %s.\n",
		snapshot.HomeTeam.Name, snapshot.AwayTeam.Name, snapshot.Score, snapshot.Phase))

	switch updateType {
	case models.UpdateTypePreMatchHype:
		sb.WriteString("Write one short hype message for the upcoming kickoff.\n")
	case models.UpdateTypeFinal:
		sb.WriteString("Write one short full-time reaction to the final score.\n")
	default:
		if event != nil {
			ours := event.TeamID != "" && event.TeamID == g.cfg.TeamID
			sb.WriteString(fmt.Sprintf("Event: %s", event.Kind))
			if event.AthleteName != "" {
				sb.WriteString(" by " + event.AthleteName)
			}
			if team, ok := snapshot.TeamByID(event.TeamID); ok {
				sb.WriteString(" for " + team.Name)
			}
			if event.Clock != "" {
				sb.WriteString(" at " + event.Clock)
			}
			if ours {
				sb.WriteString(" (our team)")
			} else {
				sb.WriteString(" (the opposition)")
			}
			sb.WriteString(".\nWrite one short reaction to this event.\n")
		} else {
			sb.WriteString("Write one short update on the current match situation.\n")
		}
	}

	if recent := g.contexts.Recent(snapshot.MatchID); len(recent) > 0 {
		sb.WriteString("\nRecent messages already posted (do not repeat them):\n")
		for _, line := range recent {
			sb.WriteString("- " + line + "\n")
		}
	}

	sb.WriteString("\nKeep it under 280 characters. No hashtags.")
	return persona, sb.String()
}

// remotePersona fetches an operator-managed persona prompt if configured.
// Any failure falls back to the built-in persona silently.
func (g *Generator) remotePersona() string {
	if g.cfg.PromptAPIBaseURL == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.PromptAPIBaseURL+"/prompts/live-reporting", http.NoBody)
	if err != nil {
		return ""
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return ""
	}

	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Prompt
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// callModel runs one chat completion with a bounded retry
func (g *Generator) callModel(ctx context.Context, system, prompt string) (string, error) {
	payload := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   150,
		Temperature: 0.9,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var line string

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := g.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				err := fmt.Errorf("model returned status %d: %s", resp.StatusCode, string(body))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}

			var completion chatResponse
			if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if len(completion.Choices) == 0 {
				return fmt.Errorf("model returned no choices")
			}

			text := strings.TrimSpace(completion.Choices[0].Message.Content)
			if text == "" {
				return fmt.Errorf("model returned empty content")
			}
			text = truncateRunes(text, maxCommentaryLen)
			line = text
			return nil
		},
		retry.Attempts(modelAttempts),
		retry.Delay(200*time.Millisecond),
		retry.Context(callCtx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	return line, nil
}

// truncateRunes trims s to at most n runes so a cut never splits a
// multi-byte character
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// opponentOf names the team facing ours in the snapshot
func (g *Generator) opponentOf(snapshot *models.MatchSnapshot) string {
	if snapshot.HomeTeam.ID == g.cfg.TeamID {
		return snapshot.AwayTeam.Name
	}
	return snapshot.HomeTeam.Name
}

// isRival reports whether the opponent is a configured rival
func (g *Generator) isRival(opponent string) bool {
	name := strings.ToLower(opponent)
	for _, rival := range g.cfg.RivalNames {
		if rival == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(rival)) {
			return true
		}
	}
	return false
}
