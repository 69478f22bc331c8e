package http

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-boot/internal/core/services/monitor"
)

// SnapshotSource supplies the current dashboard view.
type SnapshotSource interface {
	Snapshot() monitor.Snapshot
}

// DashboardHandler serves the vehicle monitor.
type DashboardHandler struct {
	source  SnapshotSource
	refresh time.Duration
}

func NewDashboardHandler(source SnapshotSource, refresh time.Duration) *DashboardHandler {
	if refresh < time.Second {
		refresh = 15 * time.Second
	}
	return &DashboardHandler{source: source, refresh: refresh}
}

var dashboardPage = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"f1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"f6": func(v float64) string { return fmt.Sprintf("%.6f", v) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>EV Vehicle Monitor</title>
</head>
<body>
<h1>EV Vehicle Monitor</h1>
{{- if .Snapshot.Error}}
<p class="error">Error updating dashboard: {{.Snapshot.Error}}</p>
{{- else if not .Snapshot.Latest}}
<p class="error">No data available from the database</p>
{{- else}}
{{- with .Snapshot.Latest}}
<section class="metrics">
<div>Battery Level <strong>{{f1 .BatteryLevel}}%</strong></div>
<div>Speed <strong>{{f1 .Speed}} m/s</strong></div>
<div>Temperature <strong>{{f1 .BatteryTemperature}}°C</strong></div>
</section>
<h2>Battery Details</h2>
<table>
<tr><td>SOC</td><td>{{f1 .BatterySOC}}%</td></tr>
<tr><td>Voltage</td><td>{{f1 .BatteryVoltage}}V</td></tr>
<tr><td>Current</td><td>{{f1 .BatteryCurrent}}A</td></tr>
<tr><td>SOH</td><td>{{f1 .BatterySOH}}%</td></tr>
</table>
<h2>Location Details</h2>
<table>
<tr><td>Latitude</td><td>{{f6 .Latitude}}</td></tr>
<tr><td>Longitude</td><td>{{f6 .Longitude}}</td></tr>
<tr><td>Altitude</td><td>{{f1 .Altitude}} m</td></tr>
<tr><td>Direction</td><td>{{f1 .Direction}}°</td></tr>
</table>
{{- end}}
{{- if .Snapshot.AlertSent}}
<p class="warning">Low battery alert sent! Battery level: {{f1 .Snapshot.Latest.BatteryLevel}}%</p>
{{- end}}
<p>Samples in window: {{len .Snapshot.History}}</p>
<p>Last updated: {{.Snapshot.Latest.Timestamp.Format "2006-01-02 15:04:05"}}</p>
{{- end}}
</body>
</html>
`))

// Index renders the dashboard page. It reloads itself every refresh interval.
func (h *DashboardHandler) Index(c *fiber.Ctx) error {
	var buf bytes.Buffer
	err := dashboardPage.Execute(&buf, struct {
		Snapshot monitor.Snapshot
		Refresh  int
	}{
		Snapshot: h.source.Snapshot(),
		Refresh:  int(h.refresh.Seconds()),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Snapshot returns the current snapshot as JSON.
func (h *DashboardHandler) Snapshot(c *fiber.Ctx) error {
	return c.JSON(h.source.Snapshot())
}

// Health reports ok once the first refresh has completed without error.
func (h *DashboardHandler) Health(c *fiber.Ctx) error {
	snap := h.source.Snapshot()
	switch {
	case snap.UpdatedAt.IsZero():
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "starting"})
	case snap.Error != "":
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": snap.Error})
	}
	return c.JSON(fiber.Map{"status": "ok", "updated_at": snap.UpdatedAt})
}
