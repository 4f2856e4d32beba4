package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTracerProducesCorrelatableIDs(t *testing.T) {
	tr := New()
	ctx, span := tr.StartSpan(context.Background(), "fetch")
	defer span.End()

	traceID, spanID := ExtractIDs(ctx)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
}

func TestNoopTracerStillReturnsUsableSpan(t *testing.T) {
	tr := Noop()
	_, span := tr.StartSpan(context.Background(), "fetch")
	assert.NotPanics(t, span.End)
}

func TestExtractIDsEmptyWithoutActiveSpan(t *testing.T) {
	traceID, spanID := ExtractIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}
