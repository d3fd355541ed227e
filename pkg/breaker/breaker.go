// Package breaker implements a three-state circuit breaker used to guard
// calls to external dependencies. Each dependency gets its own instance;
// state is kept in memory only, so every breaker starts Closed after a
// process restart.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"livereport-service/logger"
)

// State represents the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned by Call when the breaker refuses to execute.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the tuning knobs for one breaker instance.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes in half-open before closing
	RecoveryTimeout  time.Duration // how long to stay open before probing

	// AccountableErr limits breaker accounting to errors matching this
	// sentinel (via errors.Is). A nil value counts every error.
	AccountableErr error
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailure     time.Time
	lastTransition  time.Time
	openedCount     int64
	refusedCount    int64
}

// New creates a breaker with sane defaults for any zero config fields.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		cfg:            cfg,
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// CanExecute reports whether a call may proceed. When the breaker is Open
// and the recovery timeout has elapsed it transitions to HalfOpen and lets
// the probing call through.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) >= b.cfg.RecoveryTimeout {
			b.toHalfOpen()
			return true
		}
		return false
	}
	return false
}

// RecordSuccess reports a successful call to the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.toClosed()
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure reports a failed call to the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately.
		b.toOpen()
	}
}

// Call runs op under breaker protection. It refuses with ErrCircuitOpen
// when the breaker is open. Only errors matching AccountableErr participate
// in breaker accounting; unexpected error types propagate untouched.
func (b *Breaker) Call(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.CanExecute() {
		b.mu.Lock()
		b.refusedCount++
		b.mu.Unlock()
		return ErrCircuitOpen
	}

	err := op(ctx)
	if err == nil {
		b.RecordSuccess()
		return nil
	}

	if b.cfg.AccountableErr == nil || errors.Is(err, b.cfg.AccountableErr) {
		b.RecordFailure()
	}
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a snapshot for the health endpoint.
func (b *Breaker) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := map[string]interface{}{
		"name":            b.cfg.Name,
		"state":           string(b.state),
		"failure_count":   b.failureCount,
		"success_count":   b.successCount,
		"opened_count":    b.openedCount,
		"refused_count":   b.refusedCount,
		"last_transition": b.lastTransition.Format(time.RFC3339),
	}
	if !b.lastFailure.IsZero() {
		status["last_failure"] = b.lastFailure.Format(time.RFC3339)
	}
	return status
}

// 以下状态切换函数必须在持有锁时调用

func (b *Breaker) toOpen() {
	if b.state != StateOpen {
		b.state = StateOpen
		b.lastTransition = time.Now()
		b.openedCount++
		logger.Errorf("[Breaker] 🚨 '%s' OPENED after %d consecutive failures", b.cfg.Name, b.failureCount)
	}
	b.successCount = 0
}

func (b *Breaker) toHalfOpen() {
	b.state = StateHalfOpen
	b.lastTransition = time.Now()
	b.successCount = 0
	logger.Printf("[Breaker] 🔄 '%s' entering HALF_OPEN, probing recovery", b.cfg.Name)
}

func (b *Breaker) toClosed() {
	b.state = StateClosed
	b.lastTransition = time.Now()
	b.failureCount = 0
	b.successCount = 0
	logger.Printf("[Breaker] ✅ '%s' CLOSED, dependency recovered", b.cfg.Name)
}
