package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStageSpansNestUnderRun(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tr := NewWithSpanProcessor(rec, "", 0)

	ctx, run := tr.StartRun(context.Background(), "recon", "example.com")
	_, ok := tr.StartStage(ctx, "subdomains", "discovery", true)
	EndStage(ok, "succeeded", 0, nil)
	_, bad := tr.StartStage(ctx, "katana", "collection", false)
	EndStage(bad, "stalled", -1, errors.New("stage stalled"))
	run.End()

	require.NoError(t, tr.Shutdown(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 3)

	runSpan := spans[2]
	assert.Equal(t, "pipeline.run", runSpan.Name())
	for _, s := range spans[:2] {
		assert.Equal(t, runSpan.SpanContext().SpanID(), s.Parent().SpanID())
	}

	assert.Equal(t, "stage.subdomains", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("stage.load_bearing", true))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("stage.status", "stalled"))
	require.Len(t, spans[1].Events(), 1)
}

func TestNoop(t *testing.T) {
	tr := Noop()
	ctx, span := tr.StartRun(context.Background(), "recon", "example.com")
	_, st := tr.StartStage(ctx, "a", "discovery", true)
	EndStage(st, "failed", 1, errors.New("x"))
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
