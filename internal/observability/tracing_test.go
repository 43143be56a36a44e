package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})

	// No exporter is configured; spans must still be usable.
	ctx, span := tracer.TraceLLMRequest(context.Background(), "anthropic", "claude-sonnet-4")
	if ctx == nil || span == nil {
		t.Fatal("expected a usable context and span")
	}
	tracer.RecordError(span, errors.New("boom"))
	tracer.RecordError(span, nil)
	span.End()

	_, toolSpan := tracer.TraceToolExecution(context.Background(), "write")
	toolSpan.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
