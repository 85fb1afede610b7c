// Package telemetry exports pipeline traces to an OpenTelemetry collector.
// One span covers the run and one child span covers each stage.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Options configures the OTLP exporter.
type Options struct {
	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	Endpoint string

	// ServiceName defaults to the tool name.
	ServiceName string

	// Insecure disables TLS.
	Insecure bool

	ConnectTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Tracer wraps a trace.Tracer with pipeline-shaped helpers. The zero-cost
// variant returned by Noop records nothing.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	shutdown time.Duration
}

// New connects an OTLP exporter and returns a tracer backed by a batching
// provider.
func New(opts Options) (*Tracer, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("telemetry: endpoint required")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = duration.TelemetryConnect
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.TelemetryShutdown
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	return NewWithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter), opts.ServiceName, opts.ShutdownTimeout), nil
}

// NewWithSpanProcessor builds a tracer around an arbitrary span processor.
func NewWithSpanProcessor(sp sdktrace.SpanProcessor, serviceName string, shutdown time.Duration) *Tracer {
	if serviceName == "" {
		serviceName = defaults.ToolName
	}
	// Not merged with resource.Default to avoid schema URL conflicts.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "supervisor"),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(defaults.ToolName + "/pipeline"),
		shutdown: shutdown,
	}
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(defaults.ToolName)}
}

// StartRun opens the root span for a pipeline run.
func (t *Tracer) StartRun(ctx context.Context, pipeline, target string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("target", target),
		),
	)
}

// StartStage opens a child span for one stage.
func (t *Tracer) StartStage(ctx context.Context, id, phase string, loadBearing bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "stage."+id,
		trace.WithAttributes(
			attribute.String("stage.id", id),
			attribute.String("stage.phase", phase),
			attribute.Bool("stage.load_bearing", loadBearing),
		),
	)
}

// EndStage records the terminal status on span and ends it.
func EndStage(span trace.Span, status string, exitCode int, err error) {
	span.SetAttributes(
		attribute.String("stage.status", status),
		attribute.Int("stage.exit_code", exitCode),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	if t.shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.shutdown)
		defer cancel()
	}
	return t.provider.Shutdown(ctx)
}
