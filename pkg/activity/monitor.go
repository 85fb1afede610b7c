// Package activity detects stalled tools by watching their output. A tool
// whose output has not changed size for longer than the activity timeout is
// reported as stalled exactly once.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/duration"
)

// Config configures a Monitor.
type Config struct {
	// Timeout is the silence allowed before the stall signal fires.
	Timeout time.Duration

	// Interval is the sampling period (default: duration.ActivitySample).
	Interval time.Duration

	// Probe is sampled every Interval.
	Probe Probe

	// Logger receives probe errors at debug level.
	Logger *slog.Logger

	// Clock replaces time.Now.
	Clock func() time.Time
}

// Monitor samples a Probe in a background goroutine.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	last     time.Time
	lastSize int64

	stalled   chan struct{}
	stallOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// Start takes a baseline sample and begins sampling until Stop is called or
// ctx is done.
func Start(ctx context.Context, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = duration.ActivitySample
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		cfg:     cfg,
		last:    cfg.Clock(),
		stalled: make(chan struct{}),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if size, err := cfg.Probe.Size(); err == nil {
		m.lastSize = size
	}

	go m.run(ctx)
	return m
}

// Stalled is closed when the stall signal fires.
func (m *Monitor) Stalled() <-chan struct{} { return m.stalled }

// LastActivity returns when output last changed size.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Stop ends sampling and waits for the sampler to exit. Safe to call more
// than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		<-m.done
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.sample() {
				return
			}
		}
	}
}

// sample records one observation and reports whether the stall fired.
func (m *Monitor) sample() bool {
	now := m.cfg.Clock()
	size, err := m.cfg.Probe.Size()

	m.mu.Lock()
	if err != nil {
		m.cfg.Logger.Debug("activity probe failed", slog.String("error", err.Error()))
	} else if size != m.lastSize {
		m.lastSize = size
		m.last = now
	}
	idle := now.Sub(m.last)
	m.mu.Unlock()

	if idle > m.cfg.Timeout {
		m.stallOnce.Do(func() { close(m.stalled) })
		return true
	}
	return false
}
