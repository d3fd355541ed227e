// Package espn fetches and normalizes live match snapshots from the ESPN
// scoreboard API. Calls are cached, retried with exponential backoff and
// guarded by a shared circuit breaker.
package espn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"livereport-service/logger"
	"livereport-service/pkg/breaker"
	"livereport-service/pkg/common"
	"livereport-service/pkg/models"
)

const (
	// DefaultBaseURL is the default API base URL
	DefaultBaseURL = "https://site.api.espn.com/apis/site/v2"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 15 * time.Second

	// DefaultCacheTTL is the default snapshot cache TTL
	DefaultCacheTTL = 20 * time.Second

	// DefaultMaxAttempts is the default retry attempt budget per fetch
	DefaultMaxAttempts = 3
)

// Config holds the configuration for the feed client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	MaxAttempts int
}

// Client is the ESPN scoreboard client
type Client struct {
	baseURL     string
	httpClient  *http.Client
	cache       *snapshotCache
	breaker     *breaker.Breaker
	maxAttempts int
}

// NewClient creates a feed client guarded by the given breaker
func NewClient(cfg Config, brk *breaker.Breaker) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cache:       newSnapshotCache(cfg.CacheTTL),
		breaker:     brk,
		maxAttempts: cfg.MaxAttempts,
	}
}

// GetMatchData fetches a normalized snapshot for one match. A nil snapshot
// with a non-nil error is a soft failure: the caller retries next cycle.
func (c *Client) GetMatchData(ctx context.Context, matchID, competition string) (*models.MatchSnapshot, error) {
	cacheKey := matchID + ":" + competition

	if snapshot, ok := c.cache.Get(cacheKey); ok {
		return snapshot, nil
	}

	if !c.breaker.CanExecute() {
		logger.Errorf("[ESPN] ⚠️ Circuit breaker open, skipping fetch for match %s", matchID)
		return nil, breaker.ErrCircuitOpen
	}

	endpoint := fmt.Sprintf("%s/sports/soccer/%s/scoreboard/%s", c.baseURL, competition, matchID)

	body, err := c.fetchWithRetry(ctx, endpoint)
	if err != nil {
		// Caller cancellation is not a feed failure; only feed errors count.
		if errors.Is(err, common.ErrFeedUnavailable) {
			c.breaker.RecordFailure()
		}
		logger.Errorf("[ESPN] ❌ Fetch failed for match %s: %v", matchID, err)
		return nil, err
	}

	snapshot, err := ParseSnapshot(matchID, competition, body)
	if err != nil {
		// 无法最小解析的快照按抓取失败处理
		c.breaker.RecordFailure()
		logger.Errorf("[ESPN] ❌ Parse failed for match %s: %v", matchID, err)
		return nil, err
	}

	c.breaker.RecordSuccess()
	c.cache.Set(cacheKey, snapshot)

	return snapshot, nil
}

// fetchWithRetry issues the GET with backoff on 5xx/timeouts. A 429 waits
// for the advertised Retry-After inside the current attempt so it does not
// consume the backoff budget.
func (c *Client) fetchWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			for {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
				if err != nil {
					return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
				}
				req.Header.Set("Accept", "application/json")
				req.Header.Set("User-Agent", "livereport-service/1.0")

				resp, err := c.httpClient.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return retry.Unrecoverable(ctx.Err())
					}
					return fmt.Errorf("%w: %v", common.ErrFeedUnavailable, err)
				}

				if resp.StatusCode == http.StatusTooManyRequests {
					wait := retryAfter(resp, 5*time.Second)
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
					logger.Printf("[ESPN] ⏳ Rate limited, waiting %v before next attempt", wait)
					select {
					case <-time.After(wait):
						continue
					case <-ctx.Done():
						return retry.Unrecoverable(ctx.Err())
					}
				}

				data, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()

				if resp.StatusCode >= 500 {
					return fmt.Errorf("%w: status %d", common.ErrFeedUnavailable, resp.StatusCode)
				}
				if resp.StatusCode != http.StatusOK {
					return retry.Unrecoverable(fmt.Errorf("%w: status %d", common.ErrFeedUnavailable, resp.StatusCode))
				}
				if readErr != nil {
					return fmt.Errorf("%w: read body: %v", common.ErrFeedUnavailable, readErr)
				}

				body = data
				return nil
			}
		},
		retry.Attempts(uint(c.maxAttempts)),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(500*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Printf("[ESPN] 🔁 Retry %d after error: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// HealthCheck probes the scoreboard endpoint
func (c *Client) HealthCheck(ctx context.Context, competition string) bool {
	endpoint := fmt.Sprintf("%s/sports/soccer/%s/scoreboard", c.baseURL, competition)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Close releases the snapshot cache
func (c *Client) Close() {
	c.cache.Close()
	c.httpClient.CloseIdleConnections()
}

// retryAfter reads the Retry-After header, falling back to def
func retryAfter(resp *http.Response, def time.Duration) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return def
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

// decodeScoreboard unmarshals a raw scoreboard payload
func decodeScoreboard(data []byte) (*ScoreboardResponse, error) {
	var sb ScoreboardResponse
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("decode scoreboard: %w", err)
	}
	return &sb, nil
}
