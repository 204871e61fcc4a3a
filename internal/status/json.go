package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pw-dashboard/internal/alert"
	"github.com/sweeney/pw-dashboard/internal/circle"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	LoadedAt      string          `json:"loaded_at,omitempty"`
	Timestamp     string          `json:"timestamp"`
	Alert         *alert.Alert    `json:"alert,omitempty"`
	Socket        ConnJSON        `json:"socket"`
	MQTT          ConnJSON        `json:"mqtt"`
	Counts        CountsJSON      `json:"telemetry_counts"`
	Circles       []circle.Circle `json:"circles"`
	Config        ConfigJSON      `json:"config"`
}

// ConnJSON reports one connection's state.
type ConnJSON struct {
	Connected bool   `json:"connected"`
	Target    string `json:"target,omitempty"`
}

// CountsJSON is the JSON representation of telemetry counts.
type CountsJSON struct {
	Applied int `json:"applied"`
	Unknown int `json:"unknown_mac"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	BackendURL  string `json:"backend_url"`
	HTTPAddr    string `json:"http_addr"`
	Telemetry   string `json:"telemetry"`
	Commands    string `json:"commands"`
	Broker      string `json:"broker,omitempty"`
	Orientation string `json:"orientation"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Loaded,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Socket:        ConnJSON{Connected: snap.SocketConnected, Target: snap.Config.BackendURL},
		MQTT:          ConnJSON{Connected: snap.MQTTConnected, Target: snap.Config.Broker},
		Counts:        CountsJSON{Applied: snap.Counts.Applied, Unknown: snap.Counts.Unknown},
		Circles:       snap.Circles,
		Config: ConfigJSON{
			BackendURL:  snap.Config.BackendURL,
			HTTPAddr:    snap.Config.HTTPAddr,
			Telemetry:   snap.Config.Telemetry,
			Commands:    snap.Config.Commands,
			Broker:      snap.Config.Broker,
			Orientation: snap.Config.Orientation,
		},
	}
	if inner.Circles == nil {
		inner.Circles = []circle.Circle{}
	}
	if !snap.LoadedAt.IsZero() {
		inner.LoadedAt = snap.LoadedAt.UTC().Format(time.RFC3339)
	}
	if snap.Alert.Message != "" {
		a := snap.Alert
		inner.Alert = &a
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
