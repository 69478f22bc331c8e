package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray .env or
// lighthouse.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Domain)
	assert.Equal(t, 3*time.Second, cfg.Docker.StartupGrace)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Dashboard.RefreshInterval)
	assert.Equal(t, time.Hour, cfg.Dashboard.HistoryWindow)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.AlertCooldown)
	assert.Equal(t, 20.0, cfg.Dashboard.LowBatteryThreshold)
}

func TestLoad_LegacyDashboardVariables(t *testing.T) {
	isolate(t)
	t.Setenv("URL", "postgres://ev:ev@db:5432/ev")
	t.Setenv("ALERT_API_URL", "https://alerts.example.com/low-battery")
	t.Setenv("x-api-key", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://ev:ev@db:5432/ev", cfg.Dashboard.DatabaseURL)
	assert.Equal(t, "https://alerts.example.com/low-battery", cfg.Dashboard.AlertURL)
	assert.Equal(t, "secret", cfg.Dashboard.AlertAPIKey)
}

func TestLoad_PrefixedVariableWinsOverLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("URL", "postgres://legacy")
	t.Setenv("LIGHTHOUSE_DASHBOARD_DATABASE_URL", "postgres://prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prefixed", cfg.Dashboard.DatabaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ALERT_API_URL", "")
	require.NoError(t, os.Unsetenv("ALERT_API_URL"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ALERT_API_URL=http://alerts.local/notify\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://alerts.local/notify", cfg.Dashboard.AlertURL)
}

func TestLoad_ConfigFileAndEnvOverride(t *testing.T) {
	dir := isolate(t)
	yaml := `
server:
  port: 4000
  domain: apps.example.com
redis:
  enabled: true
  addr: redis:6379
dashboard:
  refresh_interval: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lighthouse.yaml"), []byte(yaml), 0o644))
	t.Setenv("LIGHTHOUSE_SERVER_PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "apps.example.com", cfg.Server.Domain)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.RefreshInterval)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("LIGHTHOUSE_SERVER_PORT", "70000")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Dashboard.RefreshInterval = 0
	assert.Error(t, cfg.Validate())

	cfg.Dashboard.RefreshInterval = time.Second
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	assert.Error(t, cfg.Validate())
}

// chdir is the Go 1.21 equivalent of testing.T.Chdir (added in Go 1.24):
// it switches the working directory for the rest of the test and restores
// it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	t.Setenv("PWD", abs)
	require.NoError(t, os.Chdir(abs))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
