// Package circuitbreaker stops hammering an RPC endpoint that keeps failing
// at the transport level.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling an endpoint whose breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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

// Config configures New. Zero values take the defaults in brackets.
type Config struct {
	// Name identifies the endpoint in OnStateChange.
	Name string
	// FailureThreshold consecutive endpoint failures open the breaker [5].
	FailureThreshold int
	// SuccessThreshold successful trial calls close it again [2].
	SuccessThreshold int
	// OpenTimeout is how long calls are refused before trial calls are let
	// through [30s].
	OpenTimeout time.Duration
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

// Breaker guards one endpoint. Only errors the caller classifies as endpoint
// failures count; anything else is a success for the breaker's purposes.
type Breaker struct {
	cfg   Config
	nowFn func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openUntil time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, nowFn: time.Now}
}

// Execute calls fn unless the breaker is open, and feeds the outcome back.
// A nil isFailure counts every error against the endpoint.
func (b *Breaker) Execute(fn func() error, isFailure func(error) bool) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err != nil && (isFailure == nil || isFailure(err)))
	return err
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.expire()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	from, to := b.expire()
	open := b.state == StateOpen
	b.mu.Unlock()
	b.notify(from, to)
	return !open
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	from := b.state
	if failed {
		b.successes = 0
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openUntil = b.nowFn().Add(b.cfg.OpenTimeout)
		}
	} else {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = StateClosed
				b.successes = 0
			}
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// expire must be called with mu held.
func (b *Breaker) expire() (from, to State) {
	from = b.state
	if b.state == StateOpen && b.nowFn().After(b.openUntil) {
		b.state = StateHalfOpen
		b.successes = 0
	}
	return from, b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
