package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(false, "relay", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	shutdown, err := Setup(true, "relay-test", &out)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "chat.turn")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "chat.turn")
	assert.Contains(t, out.String(), "relay-test")
}
