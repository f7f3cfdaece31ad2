package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sweeney/display-powerd/internal/status"
)

var pageFuncs = template.FuncMap{
	"uptime":     humanUptime,
	"stateClass": stateClass,
	"orNone":     orNone,
}

var indexTmpl = template.Must(template.New("index").Funcs(pageFuncs).Parse(indexHTML))

// humanUptime renders d as "2d 3h 0m 5s", dropping leading zero units.
func humanUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		n      int64
		suffix string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	parts := make([]string, 0, len(units))
	for i, u := range units {
		if len(parts) == 0 && u.n == 0 && i < len(units)-1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
	}
	return strings.Join(parts, " ")
}

func stateClass(s string) string {
	switch s {
	case "NORMAL":
		return "on"
	case "DIM":
		return "dim"
	case "LCDOFF", "SLEEP":
		return "off"
	}
	return "unknown"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Display Power</title>
<style>
:root { --fg: #222; --muted: #777; --rule: #e4e4e4; }
body { font: 14px/1.4 ui-monospace, monospace; color: var(--fg); max-width: 40em; margin: 1.5em auto; padding: 0 1em; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; color: var(--muted); margin: 1.4em 0 0.3em; }
table { width: 100%; border-spacing: 0; }
th, td { text-align: left; padding: 3px 6px; border-top: 1px solid var(--rule); }
th { font-weight: normal; width: 45%; }
.on { color: #1a7f37; font-weight: bold; }
.dim { color: #9a6700; }
.off, .unknown { color: var(--muted); }
.up { color: #1a7f37; }
.down { color: #cf222e; }
</style>
</head>
<body>
<h1>Display Power</h1>

<h2>State</h2>
<table>
<tr><th>Current</th><td id="state" class="{{stateClass .State}}">{{.State}}</td></tr>
<tr><th>Previous</th><td>{{.Previous}}</td></tr>
<tr><th>Off reason</th><td>{{orNone .OffReason}}</td></tr>
<tr><th>Smart stay</th><td>{{.Detection}}</td></tr>
</table>

<h2>Standby</h2>
<table>
<tr><th>Override</th><td>{{if .StandbyActive}}active{{else}}inactive{{end}}</td></tr>
{{range .Holders}}<tr><th>pid {{.PID}}</th><td>{{.Name}}</td></tr>
{{end}}</table>

<h2>Transitions</h2>
<table>
{{range .Transitions}}<tr><th>{{.Name}}</th><td>{{.Count}}</td></tr>
{{else}}<tr><td>none yet</td></tr>
{{end}}</table>

<h2>MQTT</h2>
<table>
{{if .MQTTConnected}}<tr><th>Link</th><td class="up">connected</td></tr>{{else}}<tr><th>Link</th><td class="down">disconnected</td></tr>{{end}}
<tr><th>Broker</th><td>{{orNone .Config.Broker}}</td></tr>
</table>

<h2>Daemon</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Since</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
<tr><th>Normal timeout</th><td>{{.Config.NormalTimeout}}</td></tr>
<tr><th>Dim timeout</th><td>{{if .Config.DimEnabled}}{{.Config.DimTimeout}}{{else}}disabled{{end}}</td></tr>
<tr><th>LCD-off timeout</th><td>{{.Config.LCDOffTimeout}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.Heartbeat 0}}disabled{{else}}{{.Config.Heartbeat}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">index.json</a> &middot; <a href="/standby">standby</a></p>
</body>
</html>
`

type countRow struct {
	Name  string
	Count int64
}

type page struct {
	status.Snapshot
	Uptime      time.Duration
	Transitions []countRow
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	p := page{Snapshot: snap, Uptime: snap.Uptime()}
	for name, n := range snap.Counts.Transitions {
		p.Transitions = append(p.Transitions, countRow{Name: name, Count: n})
	}
	sort.Slice(p.Transitions, func(i, j int) bool { return p.Transitions[i].Name < p.Transitions[j].Name })
	return indexTmpl.Execute(w, p)
}
