package telemetry

import (
	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/metrics"
)

// Sink receives decoded telemetry.
type Sink interface {
	// ApplyTelemetry updates the circle m refers to. It returns false when
	// no circle matches.
	ApplyTelemetry(m Message) bool
	SetSocketConnected(connected bool)
}

// NewHandler returns a Handler that decodes raw messages and forwards them
// to sink. Malformed messages are logged and dropped.
func NewHandler(sink Sink, m metrics.Collector, log zerolog.Logger) Handler {
	if m == nil {
		m = metrics.Noop()
	}
	return func(data []byte) {
		msg, err := Decode(data)
		if err != nil {
			m.IncTelemetry(metrics.TelemetryMalformed)
			log.Warn().Err(err).Bytes("data", truncate(data, 120)).Msg("dropping telemetry message")
			return
		}

		if msg.IsStatus() {
			m.IncTelemetry(metrics.TelemetryStatus)
			connected := *msg.Result == ResultOpened
			sink.SetSocketConnected(connected)
			m.SetSocketConnected(connected)
			log.Debug().Str("result", *msg.Result).Msg("socket status")
			return
		}

		if !sink.ApplyTelemetry(msg) {
			m.IncTelemetry(metrics.TelemetryUnknown)
			log.Debug().Str("mac", msg.MAC).Msg("telemetry for unknown circle")
			return
		}
		m.IncTelemetry(metrics.TelemetryApplied)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
