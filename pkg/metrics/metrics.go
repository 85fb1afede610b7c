// Package metrics exposes supervisor metrics for Prometheus scraping:
// stage outcomes and durations, reaper counts and the in-flight process
// gauge. A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so nothing leaks into the default one.
type Collector struct {
	registry *prometheus.Registry

	stagesTotal     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	abortsTotal     prometheus.Counter
	reapedTotal     *prometheus.CounterVec
	runDuration     prometheus.Gauge
	placeholdersTot prometheus.Counter

	mu     sync.Mutex
	server *http.Server
}

// New creates a collector. inflight, if non-nil, backs the in-flight
// process gauge.
func New(inflight func() float64) (*Collector, error) {
	ns := defaults.ToolName
	c := &Collector{registry: prometheus.NewRegistry()}

	c.stagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stages_total",
			Help:      "Stages finished, by stage, phase and terminal status",
		},
		[]string{"stage", "phase", "status"},
	)
	c.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock stage duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"stage", "status"},
	)
	c.abortsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "pipeline_aborts_total",
		Help:      "Runs aborted by a load-bearing stage failure",
	})
	c.reapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reaper_processes_total",
			Help:      "Processes seen by the reaper, by outcome (found, killed, remaining)",
		},
		[]string{"outcome"},
	)
	c.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last pipeline run in seconds",
	})
	c.placeholdersTot = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "placeholders_created_total",
		Help:      "Placeholder files created for skipped stages",
	})

	collectors := []prometheus.Collector{
		c.stagesTotal,
		c.stageDuration,
		c.abortsTotal,
		c.reapedTotal,
		c.runDuration,
		c.placeholdersTot,
	}
	if inflight != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "inflight_processes",
			Help:      "External processes currently registered as running",
		}, inflight))
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveStage records one terminal stage outcome.
func (c *Collector) ObserveStage(stage, phase, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.stagesTotal.WithLabelValues(stage, phase, status).Inc()
	c.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveAbort counts a run aborted by a load-bearing failure.
func (c *Collector) ObserveAbort() {
	if c == nil {
		return
	}
	c.abortsTotal.Inc()
}

// ObservePlaceholders counts placeholder files created.
func (c *Collector) ObservePlaceholders(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.placeholdersTot.Add(float64(n))
}

// ObserveReap records a reaper report.
func (c *Collector) ObserveReap(found, killed, remaining int) {
	if c == nil {
		return
	}
	c.reapedTotal.WithLabelValues("found").Add(float64(found))
	c.reapedTotal.WithLabelValues("killed").Add(float64(killed))
	c.reapedTotal.WithLabelValues("remaining").Add(float64(remaining))
}

// ObserveRun records the total run duration.
func (c *Collector) ObserveRun(d time.Duration) {
	if c == nil {
		return
	}
	c.runDuration.Set(d.Seconds())
}

// Serve starts an HTTP listener on addr exposing /metrics. It returns once
// the listener is bound.
func (c *Collector) Serve(addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: duration.MetricsReadHeader,
	}
	c.mu.Lock()
	c.server = srv
	c.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Close stops the metrics server if one is running.
func (c *Collector) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration.MetricsShutdown)
	defer cancel()
	return srv.Shutdown(ctx)
}
