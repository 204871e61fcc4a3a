package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncTelemetry(TelemetryApplied)
	collector.IncCommand("switch", nil)
	collector.SetSocketConnected(true)
}

func TestPrometheusCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncTelemetry(TelemetryApplied)
	collector.IncTelemetry(TelemetryApplied)
	collector.IncTelemetry(TelemetryUnknown)
	collector.IncCommand("switch", nil)
	collector.IncCommand("switch", errors.New("offline"))
	collector.IncBackendWrite("schedule", nil)
	collector.IncButtonPress(17)
	collector.SetSocketConnected(true)
	collector.SetCircles(4)

	require.Equal(t, 2.0, testutil.ToFloat64(collector.telemetry.WithLabelValues(TelemetryApplied)))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.telemetry.WithLabelValues(TelemetryUnknown)))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.commands.WithLabelValues("switch", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.commands.WithLabelValues("switch", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.backendWrites.WithLabelValues("schedule", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.buttonPresses.WithLabelValues("17")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.socketConnected))
	require.Equal(t, 4.0, testutil.ToFloat64(collector.circles))

	collector.SetSocketConnected(false)
	require.Equal(t, 0.0, testutil.ToFloat64(collector.socketConnected))
}

func TestPrometheusCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, first.telemetry, again.telemetry)

	first.IncTelemetry(TelemetryMalformed)
	again.IncTelemetry(TelemetryMalformed)
	require.Equal(t, 2.0, testutil.ToFloat64(first.telemetry.WithLabelValues(TelemetryMalformed)))
}
