// Package retry is the shared retry and polling engine. The pipeline
// retries failed tool invocations with Do; the reaper polls process
// liveness with Poll while a termination grace period runs out.
//
// Usage:
//
//	gone := retry.Poll(ctx, duration.KillPoll, duration.KillGrace, func() bool {
//	    return !alive(pid)
//	})
package retry

import (
	"context"
	"errors"
	"time"
)

// Strategy defines how the delay between attempts grows.
type Strategy int

const (
	// Linear waits InitDelay * attempt before the attempt-th retry.
	Linear Strategy = iota
	// Constant waits InitDelay between every attempt.
	Constant
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts including the first. 0 means no-op.
	InitDelay   time.Duration // Base delay before the first retry.
	MaxDelay    time.Duration // Upper bound on any single delay; 0 means none.
	Strategy    Strategy

	// OnRetry, if set, is called after a failed attempt that will be
	// retried, before sleeping. attempt is 1-based.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// StopError wraps an error to signal that retrying should stop immediately.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

var errPending = errors.New("retry: condition not met")

// Do calls fn up to cfg.MaxAttempts times and returns nil on the first
// success, or the last error. A StopError ends the loop and its wrapped
// error is returned. Context cancellation returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := CalcDelay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// Poll evaluates cond every interval until it is true or timeout elapses,
// and reports whether it became true. cond runs at least once, even when ctx
// is already done.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if interval <= 0 {
		interval = timeout
	}
	if interval <= 0 || timeout < interval {
		return false
	}
	if sleep(ctx, interval) != nil {
		return false
	}
	return Do(ctx, Config{
		MaxAttempts: int(timeout / interval),
		InitDelay:   interval,
		Strategy:    Constant,
	}, func() error {
		if cond() {
			return nil
		}
		return errPending
	}) == nil
}

// CalcDelay returns the sleep after the attempt-th failure (1-based).
func CalcDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitDelay
	if cfg.Strategy == Linear && attempt > 1 {
		delay *= time.Duration(attempt)
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
