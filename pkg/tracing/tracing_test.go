package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNopTracerProducesNoTraceID(t *testing.T) {
	tr, err := New(Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := tr.StartSpan(context.Background(), "process", attribute.String("bot_id", "b1"))
	EndSpan(span, errors.New("ignored"))
	assert.Equal(t, "", TraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestEnabledTracerCarriesTraceID(t *testing.T) {
	tr, err := New(Config{Enabled: true, ServiceName: "signalhook-test"})
	require.NoError(t, err)
	defer func() { _ = tr.Shutdown(context.Background()) }()

	ctx, span := tr.StartSpan(context.Background(), "process")
	assert.Len(t, TraceID(ctx), 32)
	EndSpan(span, nil)
}
