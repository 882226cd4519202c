// Package breaker implements a small circuit breaker guarding transport-level
// failure storms (DNS/TLS/timeout), independent of the endpoint package's
// rate-limit cooldown state machine. It is a direct trim of the teacher's
// enterprise circuit breaker down to the three states and three operations
// this client actually needs.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's lifecycle stage.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes when the breaker trips and how long it stays open.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig trips after 5 consecutive transport failures and probes
// again after 30 seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// TransportBreaker fails fast on a storm of transport-level errors so the
// client doesn't spend its retry budget re-dialing a dead network. It knows
// nothing about HTTP status codes or rate limits; those are the endpoint
// package's concern.
type TransportBreaker struct {
	mu sync.Mutex

	cfg Config
	log *zap.Logger

	state       State
	failures    int
	openedAt    time.Time
	nowFn       func() time.Time
}

// New constructs a TransportBreaker in the Closed state.
func New(cfg Config, log *zap.Logger) *TransportBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransportBreaker{
		cfg:   cfg,
		log:   log,
		state: StateClosed,
		nowFn: time.Now,
	}
}

// Allow reports whether a transport call may proceed. An Open breaker whose
// reset timeout has elapsed transitions to HalfOpen and allows the call
// through. A HalfOpen breaker allows every call until the next
// RecordSuccess or RecordFailure; the number of probing calls is not limited.
func (b *TransportBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.nowFn().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.log.Info("transport breaker half-open, probing")
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure counter and closes the breaker if it was
// half-open.
func (b *TransportBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.log.Info("transport breaker closed after successful probe")
	}
	b.state = StateClosed
	b.failures = 0
}

// RecordFailure counts a transport failure. Closed trips Open once the
// failure threshold is reached; HalfOpen trips Open immediately since a
// probe failing means the transport is still unhealthy.
func (b *TransportBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	}
}

func (b *TransportBreaker) open() {
	b.state = StateOpen
	b.openedAt = b.nowFn()
	b.log.Warn("transport breaker open", zap.Int("failures", b.failures))
}

// State returns the breaker's current state, mostly for status reporting.
func (b *TransportBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
