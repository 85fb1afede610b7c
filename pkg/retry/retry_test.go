package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		InitDelay:   time.Millisecond,
		Strategy:    Constant,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
			assert.EqualError(t, err, "tool busy")
			assert.Equal(t, time.Millisecond, delay)
		},
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("tool busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, InitDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("exit status 1")
	})
	assert.EqualError(t, err, "exit status 1")
	assert.Equal(t, 2, calls)
}

func TestDoStop(t *testing.T) {
	permanent := errors.New("stage timed out")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitDelay: time.Millisecond}, func() error {
		calls++
		return Stop(permanent)
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttempts(t *testing.T) {
	called := false
	err := Do(context.Background(), Config{}, func() error {
		called = true
		return errors.New("x")
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Config{MaxAttempts: 3}, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Do(ctx, Config{MaxAttempts: 3, InitDelay: time.Hour}, func() error {
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalcDelay(t *testing.T) {
	cfg := Config{InitDelay: time.Second, MaxDelay: 5 * time.Second, Strategy: Linear}
	assert.Equal(t, time.Second, CalcDelay(cfg, 1))
	assert.Equal(t, 3*time.Second, CalcDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, CalcDelay(cfg, 9))

	cfg.Strategy = Constant
	assert.Equal(t, time.Second, CalcDelay(cfg, 7))

	cfg.MaxDelay = 0
	cfg.Strategy = Linear
	assert.Equal(t, 9*time.Second, CalcDelay(cfg, 9))
}

func TestPoll(t *testing.T) {
	start := time.Now()
	n := 0
	ok := Poll(context.Background(), 5*time.Millisecond, time.Second, func() bool {
		n++
		return n == 4
	})
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollTimesOut(t *testing.T) {
	start := time.Now()
	ok := Poll(context.Background(), 10*time.Millisecond, 50*time.Millisecond, func() bool { return false })
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPollZeroTimeoutChecksOnce(t *testing.T) {
	n := 0
	ok := Poll(context.Background(), 0, 0, func() bool { n++; return true })
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestPollCancelledContextStillChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	assert.True(t, Poll(ctx, time.Millisecond, time.Second, func() bool { n++; return true }))
	assert.Equal(t, 1, n)

	n = 0
	assert.False(t, Poll(ctx, time.Millisecond, time.Second, func() bool { n++; return false }))
	assert.Equal(t, 1, n)
}
