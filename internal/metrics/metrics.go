// Package metrics exposes dashboard counters to Prometheus.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry outcomes.
const (
	TelemetryApplied   = "applied"
	TelemetryUnknown   = "unknown_mac"
	TelemetryMalformed = "malformed"
	TelemetryStatus    = "status"
)

// Collector captures events emitted by the dashboard. Hooks run inline with
// message handling and must be cheap.
type Collector interface {
	IncTelemetry(outcome string)
	IncCommand(cmd string, err error)
	IncBackendWrite(document string, err error)
	IncButtonPress(pin int)
	SetSocketConnected(connected bool)
	SetCircles(n int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncTelemetry(string)           {}
func (noopCollector) IncCommand(string, error)      {}
func (noopCollector) IncBackendWrite(string, error) {}
func (noopCollector) IncButtonPress(int)            {}
func (noopCollector) SetSocketConnected(bool)       {}
func (noopCollector) SetCircles(int)                {}

// PrometheusCollector records dashboard events as Prometheus metrics.
type PrometheusCollector struct {
	telemetry       *prometheus.CounterVec
	commands        *prometheus.CounterVec
	backendWrites   *prometheus.CounterVec
	buttonPresses   *prometheus.CounterVec
	socketConnected prometheus.Gauge
	circles         prometheus.Gauge
}

// NewPrometheusCollector registers the metrics with reg. Metrics already
// registered by an earlier collector are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{}
	var err error

	if p.telemetry, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_dashboard_telemetry_messages_total",
		Help: "Telemetry messages received, by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_dashboard_commands_total",
		Help: "Circle commands sent, by command and result.",
	}, []string{"cmd", "result"})); err != nil {
		return nil, err
	}
	if p.backendWrites, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_dashboard_backend_writes_total",
		Help: "Documents written to the backend, by document kind and result.",
	}, []string{"document", "result"})); err != nil {
		return nil, err
	}
	if p.buttonPresses, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_dashboard_button_presses_total",
		Help: "Hardware button presses, by GPIO line.",
	}, []string{"pin"})); err != nil {
		return nil, err
	}
	if p.socketConnected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pw_dashboard_socket_connected",
		Help: "1 while the telemetry socket is connected.",
	})); err != nil {
		return nil, err
	}
	if p.circles, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pw_dashboard_circles",
		Help: "Number of circles in the merged configuration.",
	})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// IncTelemetry counts one telemetry message.
func (p *PrometheusCollector) IncTelemetry(outcome string) {
	p.telemetry.WithLabelValues(outcome).Inc()
}

// IncCommand counts one command delivery attempt.
func (p *PrometheusCollector) IncCommand(cmd string, err error) {
	p.commands.WithLabelValues(cmd, result(err)).Inc()
}

// IncBackendWrite counts one document write.
func (p *PrometheusCollector) IncBackendWrite(document string, err error) {
	p.backendWrites.WithLabelValues(document, result(err)).Inc()
}

// IncButtonPress counts one button press.
func (p *PrometheusCollector) IncButtonPress(pin int) {
	p.buttonPresses.WithLabelValues(strconv.Itoa(pin)).Inc()
}

// SetSocketConnected updates the socket gauge.
func (p *PrometheusCollector) SetSocketConnected(connected bool) {
	if connected {
		p.socketConnected.Set(1)
		return
	}
	p.socketConnected.Set(0)
}

// SetCircles updates the circle count.
func (p *PrometheusCollector) SetCircles(n int) {
	p.circles.Set(float64(n))
}
