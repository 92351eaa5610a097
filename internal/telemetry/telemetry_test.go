package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitWithoutEndpointKeepsProviders(t *testing.T) {
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()

	shutdown, err := Init(context.Background(), "exchange", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	assert.Same(t, tp, otel.GetTracerProvider())
	assert.Same(t, mp, otel.GetMeterProvider())
}

func TestInitInstallsTracerAndMeterProviders(t *testing.T) {
	// Exporters dial lazily, so nothing needs to listen here.
	shutdown, err := Init(context.Background(), "exchange", "http://127.0.0.1:4318")
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
