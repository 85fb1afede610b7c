// Package cli holds process-level helpers shared by the bagbounty commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
)

// ErrInterrupted is the cancellation cause set when an operator signal
// arrives.
var ErrInterrupted = errors.New("interrupted by operator")

// SignalOption configures SignalContext.
type SignalOption func(*signalConfig)

type signalConfig struct {
	out         io.Writer
	onInterrupt func(os.Signal)
	sigChan     chan os.Signal
	exitFn      func(int)
}

// WithOutput sets where the shutdown notice is printed (default stderr).
func WithOutput(w io.Writer) SignalOption {
	return func(c *signalConfig) { c.out = w }
}

// OnInterrupt registers fn to run once, right after the context is
// cancelled by the first signal.
func OnInterrupt(fn func(os.Signal)) SignalOption {
	return func(c *signalConfig) { c.onInterrupt = fn }
}

// SignalContext returns a context cancelled with cause ErrInterrupted on
// SIGINT/SIGTERM. A second signal within gracePeriod exits the process
// with defaults.ExitInterrupted.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(duration.SignalGrace)
//	defer cancel()
func SignalContext(gracePeriod time.Duration, opts ...SignalOption) (context.Context, context.CancelFunc) {
	cfg := signalConfig{out: os.Stderr, exitFn: os.Exit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return signalContext(gracePeriod, cfg)
}

func signalContext(gracePeriod time.Duration, cfg signalConfig) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(context.Background())
	cancel := func() { cancelCause(context.Canceled) }

	ownChannel := cfg.sigChan == nil
	sigChan := cfg.sigChan
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()

		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-ctx.Done():
			return
		}

		fmt.Fprintln(cfg.out)
		fmt.Fprintf(cfg.out, "Received %v, terminating running tools (press again to force exit)...\n", sig)
		cancelCause(ErrInterrupted)
		if cfg.onInterrupt != nil {
			cfg.onInterrupt(sig)
		}

		select {
		case <-sigChan:
			cfg.exitFn(defaults.ExitInterrupted)
		case <-time.After(gracePeriod):
		}
	}()

	return ctx, cancel
}

// Interrupted reports whether ctx was cancelled by an operator signal.
func Interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrInterrupted)
}
