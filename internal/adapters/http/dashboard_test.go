package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/services/monitor"
)

type staticSnapshot monitor.Snapshot

func (s staticSnapshot) Snapshot() monitor.Snapshot {
	return monitor.Snapshot(s)
}

func newDashboardApp(snap monitor.Snapshot) *fiber.App {
	h := NewDashboardHandler(staticSnapshot(snap), 15*time.Second)
	app := fiber.New()
	app.Get("/", h.Index)
	app.Get("/healthz", h.Health)
	app.Get("/api/snapshot", h.Snapshot)
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

var updated = time.Date(2024, 5, 1, 12, 0, 15, 0, time.UTC)

func TestDashboardIndex_NoData(t *testing.T) {
	app := newDashboardApp(monitor.Snapshot{UpdatedAt: updated})

	status, body := get(t, app, "/")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "EV Vehicle Monitor")
	assert.Contains(t, body, "No data available from the database")
	assert.Contains(t, body, `content="15"`)
}

func TestDashboardIndex_Error(t *testing.T) {
	app := newDashboardApp(monitor.Snapshot{UpdatedAt: updated, Error: "connection refused"})

	_, body := get(t, app, "/")
	assert.Contains(t, body, "Error updating dashboard: connection refused")
}

func TestDashboardIndex_Sample(t *testing.T) {
	latest := &domain.VehicleSample{
		Timestamp:          time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		BatteryLevel:       15.26,
		BatteryVoltage:     396.4,
		BatteryTemperature: 31.5,
		Speed:              12.3,
		Latitude:           41.0082379,
		Longitude:          28.9783589,
	}
	app := newDashboardApp(monitor.Snapshot{
		Latest:    latest,
		History:   []domain.VehicleSample{*latest},
		UpdatedAt: updated,
		AlertSent: true,
	})

	_, body := get(t, app, "/")
	assert.Contains(t, body, "15.3%")
	assert.Contains(t, body, "396.4V")
	assert.Contains(t, body, "41.008238")
	assert.Contains(t, body, "Low battery alert sent! Battery level: 15.3%")
	assert.Contains(t, body, "Samples in window: 1")
	assert.Contains(t, body, "Last updated: 2024-05-01 12:00:00")
}

func TestDashboardSnapshot(t *testing.T) {
	app := newDashboardApp(monitor.Snapshot{
		Latest:    &domain.VehicleSample{BatteryLevel: 80},
		UpdatedAt: updated,
	})

	status, body := get(t, app, "/api/snapshot")
	require.Equal(t, fiber.StatusOK, status)

	var snap monitor.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	require.NotNil(t, snap.Latest)
	assert.Equal(t, 80.0, snap.Latest.BatteryLevel)
}

func TestDashboardHealth(t *testing.T) {
	status, body := get(t, newDashboardApp(monitor.Snapshot{}), "/healthz")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, body, "starting")

	status, body = get(t, newDashboardApp(monitor.Snapshot{UpdatedAt: updated, Error: "timeout"}), "/healthz")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, body, "degraded")

	status, body = get(t, newDashboardApp(monitor.Snapshot{UpdatedAt: updated}), "/healthz")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"ok"`)
}
