package cli

import (
	"bytes"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbounty/bagbounty/pkg/defaults"
)

// syncBuffer guards a bytes.Buffer written from the signal goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(sigChan chan os.Signal, exitFn func(int)) signalConfig {
	if exitFn == nil {
		exitFn = func(int) {}
	}
	return signalConfig{out: &syncBuffer{}, sigChan: sigChan, exitFn: exitFn}
}

func TestSignalContext_CancelOnInterrupt(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	out := &syncBuffer{}
	cfg := testConfig(sigChan, nil)
	cfg.out = out
	ctx, cancel := signalContext(5*time.Second, cfg)
	defer cancel()

	sigChan <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after signal")
	}
	assert.True(t, Interrupted(ctx))
	assert.ErrorIs(t, context.Cause(ctx), ErrInterrupted)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("terminating running tools"))
	}, time.Second, 10*time.Millisecond)
}

func TestSignalContext_ManualCancel(t *testing.T) {
	ctx, cancel := signalContext(5*time.Second, testConfig(make(chan os.Signal, 1), nil))
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after manual cancel")
	}
	assert.False(t, Interrupted(ctx))
}

func TestSignalContext_OnInterruptRunsOnce(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	var calls atomic.Int32
	var got atomic.Value
	cfg := testConfig(sigChan, nil)
	cfg.onInterrupt = func(sig os.Signal) {
		calls.Add(1)
		got.Store(sig)
	}
	_, cancel := signalContext(50*time.Millisecond, cfg)
	defer cancel()

	sigChan <- syscall.SIGTERM

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, syscall.SIGTERM, got.Load())
}

func TestSignalContext_SecondSignalExits(t *testing.T) {
	sigChan := make(chan os.Signal, 2)
	var exitCode atomic.Int32
	exitCode.Store(-1)

	ctx, cancel := signalContext(5*time.Second, testConfig(sigChan, func(code int) {
		exitCode.Store(int32(code))
	}))
	defer cancel()

	sigChan <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after first signal")
	}

	sigChan <- os.Interrupt
	require.Eventually(t, func() bool {
		return exitCode.Load() == defaults.ExitInterrupted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalContext_GracePeriodExpires(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	var exitCalled atomic.Bool

	_, cancel := signalContext(50*time.Millisecond, testConfig(sigChan, func(int) {
		exitCalled.Store(true)
	}))
	defer cancel()

	sigChan <- os.Interrupt
	time.Sleep(200 * time.Millisecond)

	assert.False(t, exitCalled.Load(), "exit must not be called without a second signal")
}

func TestSignalContext_NoSignal(t *testing.T) {
	ctx, cancel := signalContext(5*time.Second, testConfig(make(chan os.Signal, 1), nil))
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled without signal or cancel")
	default:
	}
}
