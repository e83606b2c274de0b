package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/beacon-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "CONFIRMED":
			return "confirmed"
		case "HOLDING":
			return "holding"
		}
		return "idle"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>{{.Config.DeviceName}} Beacon</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.confirmed { color: green; font-weight: bold; }
.holding { color: orange; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}} Beacon</h1>

<h2>Button</h2>
<table>
<tr><th>State</th><td class="{{stateClass (printf "%s" .DebounceState)}}">{{stateOrUnknown (printf "%s" .DebounceState)}}</td></tr>
<tr><th>Remaining</th><td>{{.Counter}} / {{.Config.Threshold}}</td></tr>
<tr><th>Sensor</th><td>{{if .SampleOK}}{{.LastSample}}{{else}}unavailable{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>BLE</th><td class="{{if .Peer}}connected{{else}}disconnected{{end}}">{{if not .Active}}stopped{{else if .Peer}}connected (session {{.Session}}){{else}}advertising (session {{.Session}}){{end}}</td></tr>
<tr><th>Notifications</th><td>{{if .Subscribed}}subscribed{{else}}off{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Notified</th><td>{{.Counts.Notified}}</td></tr>
<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
<tr><th>Sessions</th><td>{{.Counts.Sessions}}</td></tr>
<tr><th>Sample failures</th><td>{{.Counts.SampleFailures}}</td></tr>
<tr><th>Service errors</th><td>{{.Counts.ServiceErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Loop delay</th><td>{{.Config.DelayMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
