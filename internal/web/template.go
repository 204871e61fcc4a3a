package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pw-dashboard/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s string) string {
		switch s {
		case "on":
			return "on"
		case "off":
			return "off"
		}
		return "unknown"
	},
	"deref": func(b *bool) bool {
		return b != nil && *b
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plugwise Dashboard</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.alert-success { color: green; }
.alert-danger { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>Plugwise Dashboard</h1>
{{if .Alert.Message}}<p id="alert" class="alert-{{.Alert.Type}}">{{.Alert.Message}}</p>{{end}}

<h2>Circles</h2>
{{if .Loaded}}<table>
<tr><th></th><th>Name</th><th>Location</th><th>Switch</th><th>Schedule</th><th>Power (W)</th><th>Online</th></tr>
{{range .Circles}}<tr title="{{.ToolTip}}">
<td><span class="glyphicon {{.Icon}}"></span></td>
<td>{{.Name}}</td>
<td>{{.Location}}</td>
<td class="{{stateClass .RelayOn}}">{{orUnknown .RelayOn}}{{if .AlwaysOn}} (always){{end}}</td>
<td class="{{stateClass .ScheduleState}}">{{orUnknown .ScheduleState}}{{if .Schedule}} [{{.Schedule}}]{{end}}</td>
<td id="power-{{.MAC}}">{{.Power}}</td>
<td>{{if .Online}}{{if deref .Online}}online{{else}}offline{{end}}{{else}}-{{end}}</td>
</tr>
{{end}}</table>{{else}}<p class="unknown">configuration not loaded</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>Backend</th><td>{{.Config.BackendURL}}</td></tr>
<tr><th>Telemetry</th><td>{{.Config.Telemetry}}</td></tr>
<tr><th>Socket</th><td class="{{if .SocketConnected}}connected{{else}}disconnected{{end}}">{{if .SocketConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}})</td></tr>{{end}}
<tr><th>Commands</th><td>{{.Config.Commands}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if not .LoadedAt.IsZero}}<tr><th>Loaded</th><td>{{.LoadedAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
<tr><th>Telemetry</th><td>{{.Counts.Applied}} applied, {{.Counts.Unknown}} unknown</td></tr>
<tr><th>Schedules</th><td>{{.Config.Orientation}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/api/schedules">Schedules</a> <a href="/metrics">Metrics</a></p>
<script>
(function() {
  setInterval(function() {
    fetch("/api/circles").then(function(r) { return r.json(); }).then(function(circles) {
      circles.forEach(function(c) {
        var el = document.getElementById("power-" + c.mac);
        if (el) { el.textContent = c.power; }
      });
    }).catch(function() {});
  }, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
