package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), "none", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), "stdout", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "list-todos")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"list-todos"`)
	assert.Contains(t, buf.String(), serviceName)
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), "zipkin", nil)
	assert.ErrorContains(t, err, "unknown traces exporter")
}
