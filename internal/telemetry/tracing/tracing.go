// Package tracing wraps go.opentelemetry.io/otel's real tracer API for
// per-stage, per-Lead spans (spec.md DOMAIN STACK: "trace each Lead's
// journey through fetch/extract/classify/enrich/export"). This replaces
// the teacher's hand-rolled internal span type
// (engine/internal/telemetry/tracing.Tracer) with the actual OTel SDK,
// since go.opentelemetry.io/otel/sdk is already a teacher dependency and a
// real tracer is strictly less code to own than reimplementing one.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for pipeline stages.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
}

type tracer struct{ t trace.Tracer }

// New builds a Tracer backed by an in-process TracerProvider with no
// exporter attached: spans are recorded but never shipped anywhere.
// cmd/leadpipe uses New as is. A caller wanting a real exporter builds
// its own sdktrace.TracerProvider and passes its Tracer() result in via
// WithOTelTracer; this package never attaches one itself.
func New() Tracer {
	tp := sdktrace.NewTracerProvider()
	return &tracer{t: tp.Tracer("leadpipe")}
}

// WithOTelTracer adapts an already-configured otel trace.Tracer (e.g. one
// pointed at a real exporter) to this package's Tracer interface.
func WithOTelTracer(t trace.Tracer) Tracer { return &tracer{t: t} }

func (tr *tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tr.t.Start(ctx, name)
}

// noopTracer discards spans entirely; used when tracing is disabled.
type noopTracer struct{}

func Noop() Tracer { return noopTracer{} }

func (noopTracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("leadpipe-noop").Start(ctx, name)
}

// ExtractIDs pulls the trace/span id of the active span out of ctx, for
// log-correlation (internal/telemetry/logging).
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
