package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Tests here swap the global provider, so they do not run in parallel.

func TestStartWith_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := StartWith(exp)

	_, span := otel.Tracer("test").Start(context.Background(), "rpc.forward")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rpc.forward", spans[0].Name)
	require.NoError(t, p.Stop())
}

func TestStartStdout_WritesOnStop(t *testing.T) {
	var buf bytes.Buffer
	p, err := StartStdout(&buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "bridge.session")
	span.End()

	require.NoError(t, p.Stop())
	assert.Contains(t, buf.String(), `"Name": "bridge.session"`)
	assert.Contains(t, buf.String(), ServiceName)
}
