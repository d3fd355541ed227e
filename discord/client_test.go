package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"livereport-service/pkg/breaker"
	"livereport-service/pkg/common"
)

func newTestBreaker() *breaker.Breaker {
	return breaker.New(breaker.Config{
		Name:             "discord-test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
		AccountableErr:   common.ErrPublishFailed,
	})
}

func TestPostMessage(t *testing.T) {
	var gotBody messageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot test-token" {
			t.Errorf("missing bot authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(messageResponse{ID: "555", ChannelID: "42"})
	}))
	defer server.Close()

	client := NewClient(Config{Token: "test-token", BaseURL: server.URL}, newTestBreaker())

	embed := &Embed{Title: "Sounders vs Timbers"}
	messageID, err := client.PostMessage(context.Background(), "42", "GOAL!", embed)
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if messageID != "555" {
		t.Errorf("message id = %q, want 555", messageID)
	}
	if gotBody.Content != "GOAL!" {
		t.Errorf("content = %q", gotBody.Content)
	}
	if len(gotBody.Embeds) != 1 || gotBody.Embeds[0].Title != "Sounders vs Timbers" {
		t.Errorf("unexpected embeds: %+v", gotBody.Embeds)
	}
}

func TestPostMessageHonorsRetryAfter(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0.05")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(messageResponse{ID: "556"})
	}))
	defer server.Close()

	brk := newTestBreaker()
	client := NewClient(Config{Token: "t", BaseURL: server.URL, MaxAttempts: 1}, brk)

	start := time.Now()
	messageID, err := client.PostMessage(context.Background(), "42", "update", nil)
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if messageID != "556" {
		t.Errorf("message id = %q", messageID)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, expected to honor Retry-After", elapsed)
	}
	// Rate limit waits must not count against the breaker
	if brk.State() != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", brk.State())
	}
}

func TestPostMessageLongRetryAfterDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	brk := newTestBreaker()
	client := NewClient(Config{Token: "t", BaseURL: server.URL, MaxAttempts: 1}, brk)

	start := time.Now()
	_, err := client.PostMessage(context.Background(), "42", "update", nil)
	if !errors.Is(err, common.ErrRateLimitExceeded) {
		t.Fatalf("err = %v, want ErrRateLimitExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("returned after %v, expected to give up without sleeping out the bucket", elapsed)
	}
	// A rate limit wait aborted over the cap is still not Discord failing
	if brk.State() != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", brk.State())
	}
}

func TestPostMessageBucketBlocksNextRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset-After", "0.05")
		json.NewEncoder(w).Encode(messageResponse{ID: "557"})
	}))
	defer server.Close()

	client := NewClient(Config{Token: "t", BaseURL: server.URL}, newTestBreaker())

	if _, err := client.PostMessage(context.Background(), "42", "first", nil); err != nil {
		t.Fatalf("first PostMessage returned error: %v", err)
	}

	start := time.Now()
	if _, err := client.PostMessage(context.Background(), "42", "second", nil); err != nil {
		t.Fatalf("second PostMessage returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second request after %v, expected to wait for the bucket", elapsed)
	}
}

func TestPostMessageServerErrorTripsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	brk := newTestBreaker()
	client := NewClient(Config{Token: "t", BaseURL: server.URL, MaxAttempts: 1}, brk)

	for i := 0; i < 2; i++ {
		if _, err := client.PostMessage(context.Background(), "42", "x", nil); !errors.Is(err, common.ErrPublishFailed) {
			t.Fatalf("err = %v, want ErrPublishFailed", err)
		}
	}
	if brk.State() != breaker.StateOpen {
		t.Errorf("breaker state = %v, want open", brk.State())
	}

	if _, err := client.PostMessage(context.Background(), "42", "x", nil); !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCreateThread(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/42/threads" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req threadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Name != "Sounders vs Timbers" {
			t.Errorf("thread name = %q", req.Name)
		}
		json.NewEncoder(w).Encode(messageResponse{ID: "888"})
	}))
	defer server.Close()

	client := NewClient(Config{Token: "t", BaseURL: server.URL}, newTestBreaker())

	threadID, err := client.CreateThread(context.Background(), "42", "Sounders vs Timbers")
	if err != nil {
		t.Fatalf("CreateThread returned error: %v", err)
	}
	if threadID != "888" {
		t.Errorf("thread id = %q, want 888", threadID)
	}
}
