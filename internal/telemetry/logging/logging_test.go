package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"leadpipe/internal/telemetry/tracing"
)

func TestInfoCtxAttachesTraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	l := New(base)

	tr := tracing.New()
	ctx, span := tr.StartSpan(context.Background(), "classify")
	defer span.End()

	l.InfoCtx(ctx, "candidate classified", slog.String("sector", "healthcare"))

	out := buf.String()
	assert.Contains(t, out, "candidate classified")
	assert.Contains(t, out, "trace_id")
	assert.Contains(t, out, "span_id")
}

func TestInfoCtxOmitsTraceFieldsWithoutActiveSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	l := New(base)

	l.InfoCtx(context.Background(), "no span here")

	out := buf.String()
	assert.Contains(t, out, "no span here")
	assert.NotContains(t, out, "trace_id")
}

func TestNewFallsBackToDefaultLoggerOnNilBase(t *testing.T) {
	l := New(nil)
	assert.NotNil(t, l.Base())
}
