// Package wait provides the bounded polling primitive used for every
// element lookup and the settle pause that follows interactions.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Default polling values, in line with WebDriver's explicit waits.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultInterval       = 500 * time.Millisecond
	DefaultSettle         = 1 * time.Second
	DefaultUnstableSettle = 3 * time.Second
)

// Policy bundles the durations used by the element layer.
// It is built once from configuration and never mutated.
type Policy struct {
	Timeout        time.Duration // Max time to wait for a condition
	Interval       time.Duration // Fixed cadence between polls
	Settle         time.Duration // Pause after an interaction on stable pages
	UnstableSettle time.Duration // Pause after an interaction on pages that keep rendering
}

// DefaultPolicy returns the default durations.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        DefaultTimeout,
		Interval:       DefaultInterval,
		Settle:         DefaultSettle,
		UnstableSettle: DefaultUnstableSettle,
	}
}

// WithTimeout returns a copy using d when d is positive.
func (p Policy) WithTimeout(d time.Duration) Policy {
	if d > 0 {
		p.Timeout = d
	}
	return p
}

// SettleFor returns d when positive, otherwise the policy's settle duration.
func (p Policy) SettleFor(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return p.Settle
}

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("condition not met before timeout")

// TimeoutError is returned by Until when the condition never held.
type TimeoutError struct {
	Timeout  time.Duration
	Attempts int
	Last     error // Last error returned by the condition, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("condition not met after %s (%d attempts)", e.Timeout, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

// Is lets errors.Is(err, ErrTimeout) succeed.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// Condition reports whether the awaited state holds. An error counts as
// "not yet": polling continues and the error is kept for the timeout report.
// The context passed to a condition ends at the timeout; conditions that
// block must honor it.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then once per interval until it
// returns true or timeout elapses. Cancelling ctx stops the loop and returns
// ctx.Err().
func Until(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout < 0 {
		timeout = 0
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow() // first attempt is immediate

	attempts := 0
	var last error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		ok, err := cond(deadlineCtx)
		switch {
		case err == nil && ok:
			return nil
		case err != nil && deadlineCtx.Err() == nil:
			last = err
		}

		if err := limiter.Wait(deadlineCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// the next poll would land past the deadline
			<-deadlineCtx.Done()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &TimeoutError{Timeout: timeout, Attempts: attempts, Last: last}
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
