package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func restoreTracerProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInitTracingStdout(t *testing.T) {
	restoreTracerProvider(t)
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "stdout", Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "workflow.task.execute")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "workflow.task.execute")
	assert.Contains(t, buf.String(), "stratus")
}

func TestInitTracingNone(t *testing.T) {
	prev := otel.GetTracerProvider()
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.Equal(t, prev, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingUnknown(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
