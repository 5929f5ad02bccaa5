package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// Policy bounds how often and how slowly a transient failure is retried.
// MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when a caller configures nothing.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry number attempt (1-based): base,
// 2*base, 4*base, ... capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	max := p.MaxDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 || max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome describes how a retried call ended.
type Outcome struct {
	Attempts int
	Decision Decision
	// Exhausted is true when every attempt failed transiently.
	Exhausted bool
}

// Hook observes each failed attempt before the backoff sleep.
type Hook func(attempt int, decision Decision, delay time.Duration, err error)

// Do calls fn until it succeeds, fails terminally, or the policy runs out of
// attempts. Context cancellation stops retrying immediately and is returned
// unwrapped so callers can tell it apart from ledger failures.
func Do(ctx context.Context, p Policy, sleep SleepFunc, onRetry Hook, fn func(ctx context.Context) error) (Outcome, error) {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.effectiveMaxAttempts()

	var lastErr error
	out := Outcome{Decision: Decision{Class: ClassTerminal, Reason: "unset"}}
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		lastErr = err
		out.Decision = Classify(err)
		if !out.Decision.IsTransient() {
			return out, fmt.Errorf("terminal_failure attempt=%d reason=%s: %w", attempt, out.Decision.Reason, err)
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, out.Decision, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return out, sleepErr
		}
	}

	out.Exhausted = true
	return out, fmt.Errorf("transient_recovery_exhausted attempts=%d reason=%s: %w", attempts, out.Decision.Reason, lastErr)
}
