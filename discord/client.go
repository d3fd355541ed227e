// Package discord publishes match updates to Discord channels and threads
// through the REST API. Requests respect per-route rate limit buckets and are
// guarded by a shared circuit breaker.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"livereport-service/logger"
	"livereport-service/pkg/breaker"
	"livereport-service/pkg/common"
)

const (
	// DefaultBaseURL is the Discord REST API base URL
	DefaultBaseURL = "https://discord.com/api/v10"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAttempts is the retry attempt budget per request
	DefaultMaxAttempts = 3

	// maxRateLimitWait caps how long a single request waits on a bucket
	maxRateLimitWait = 30 * time.Second
)

// Config holds the configuration for the Discord client
type Config struct {
	Token       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// Client is the Discord REST client
type Client struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	breaker     *breaker.Breaker
	maxAttempts int

	mu      sync.Mutex
	buckets map[string]time.Time // route -> earliest next request time
}

// NewClient creates a Discord client guarded by the given breaker
func NewClient(cfg Config, brk *breaker.Breaker) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Client{
		token:       cfg.Token,
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		breaker:     brk,
		maxAttempts: cfg.MaxAttempts,
		buckets:     make(map[string]time.Time),
	}
}

// messageRequest is the create-message payload
type messageRequest struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// messageResponse is the subset of the created message we care about
type messageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// threadRequest is the start-thread-without-message payload
type threadRequest struct {
	Name                string `json:"name"`
	Type                int    `json:"type"`
	AutoArchiveDuration int    `json:"auto_archive_duration"`
}

// PostMessage sends a message to a channel or thread and returns the created
// message id. A rate limit wait is not an error and never trips the breaker.
func (c *Client) PostMessage(ctx context.Context, channelID, content string, embed *Embed) (string, error) {
	payload := messageRequest{Content: content}
	if embed != nil {
		payload.Embeds = []Embed{*embed}
	}

	route := "POST:/channels/" + channelID + "/messages"
	endpoint := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)

	body, err := c.do(ctx, http.MethodPost, endpoint, route, payload)
	if err != nil {
		return "", err
	}

	var msg messageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("decode message response: %w", err)
	}

	return msg.ID, nil
}

// CreateThread starts a public thread in a channel and returns the thread id
func (c *Client) CreateThread(ctx context.Context, channelID, name string) (string, error) {
	payload := threadRequest{
		Name:                name,
		Type:                11, // public thread
		AutoArchiveDuration: 1440,
	}

	route := "POST:/channels/" + channelID + "/threads"
	endpoint := fmt.Sprintf("%s/channels/%s/threads", c.baseURL, channelID)

	body, err := c.do(ctx, http.MethodPost, endpoint, route, payload)
	if err != nil {
		return "", err
	}

	var thread messageResponse
	if err := json.Unmarshal(body, &thread); err != nil {
		return "", fmt.Errorf("decode thread response: %w", err)
	}

	return thread.ID, nil
}

// HealthCheck verifies the token against the identity endpoint
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/@me", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// do runs one API call through the breaker with bucket waits and retries
func (c *Client) do(ctx context.Context, method, endpoint, route string, payload interface{}) ([]byte, error) {
	if !c.breaker.CanExecute() {
		logger.Errorf("[Discord] ⚠️ Circuit breaker open, dropping %s", route)
		return nil, breaker.ErrCircuitOpen
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var body []byte

	err = retry.Do(
		func() error {
			for {
				if err := c.waitForBucket(ctx, route); err != nil {
					return retry.Unrecoverable(err)
				}

				req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
				if err != nil {
					return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
				}
				req.Header.Set("Authorization", "Bot "+c.token)
				req.Header.Set("Content-Type", "application/json")

				resp, err := c.httpClient.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return retry.Unrecoverable(ctx.Err())
					}
					return fmt.Errorf("%w: %v", common.ErrPublishFailed, err)
				}

				respBody, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()
				c.updateBucket(route, resp)

				if resp.StatusCode == http.StatusTooManyRequests {
					// The bucket was pushed forward by updateBucket; go
					// around without consuming a retry attempt.
					logger.Printf("[Discord] ⏳ Rate limited on %s", route)
					continue
				}
				if resp.StatusCode >= 500 {
					return fmt.Errorf("%w: status %d", common.ErrPublishFailed, resp.StatusCode)
				}
				if resp.StatusCode < 200 || resp.StatusCode >= 300 {
					return retry.Unrecoverable(fmt.Errorf("%w: status %d: %s", common.ErrPublishFailed, resp.StatusCode, string(respBody)))
				}
				if readErr != nil {
					return fmt.Errorf("%w: read body: %v", common.ErrPublishFailed, readErr)
				}

				body = respBody
				return nil
			}
		},
		retry.Attempts(uint(c.maxAttempts)),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Printf("[Discord] 🔁 Retry %d on %s after error: %v", n+1, route, err)
		}),
	)
	if err != nil {
		// Only genuine publish failures count against the breaker. Rate
		// limit waits and caller cancellation are not Discord's fault.
		if errors.Is(err, common.ErrPublishFailed) {
			c.breaker.RecordFailure()
		}
		return nil, err
	}

	c.breaker.RecordSuccess()
	return body, nil
}

// waitForBucket blocks until the route's rate limit bucket allows a request
func (c *Client) waitForBucket(ctx context.Context, route string) error {
	c.mu.Lock()
	next, ok := c.buckets[route]
	c.mu.Unlock()

	if !ok {
		return nil
	}

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	if wait > maxRateLimitWait {
		return fmt.Errorf("%w: bucket %s blocked for %v", common.ErrRateLimitExceeded, route, wait)
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// updateBucket records the route's reset time from the response headers
func (c *Client) updateBucket(route string, resp *http.Response) {
	var wait time.Duration

	if resp.StatusCode == http.StatusTooManyRequests {
		wait = headerSeconds(resp, "Retry-After", time.Second)
	} else if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		wait = headerSeconds(resp, "X-RateLimit-Reset-After", 0)
	}

	if wait <= 0 {
		return
	}

	c.mu.Lock()
	c.buckets[route] = time.Now().Add(wait)
	c.mu.Unlock()
}

func headerSeconds(resp *http.Response, name string, def time.Duration) time.Duration {
	header := resp.Header.Get(name)
	if header == "" {
		return def
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}
