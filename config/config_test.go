package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "cashflow.db", c.Database.Path)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 6, c.Projection.HorizonMonths)
	assert.False(t, c.Scheduler.Enabled)
	assert.Equal(t, 24*time.Hour, c.Scheduler.Interval)
	assert.Contains(t, c.Server.AllowedOrigins, "http://localhost:5173")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cashflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
projection:
  horizon_months: 12
scheduler:
  enabled: true
  interval: 1h
`), 0o600))

	t.Setenv("CASHFLOW_LOG_LEVEL", "debug")
	t.Setenv("CASHFLOW_SERVER_PORT", "9100")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 12, c.Projection.HorizonMonths)
	assert.True(t, c.Scheduler.Enabled)
	assert.Equal(t, time.Hour, c.Scheduler.Interval)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := &Config{Server: ServerConfig{Port: 8080}, Projection: ProjectionConfig{HorizonMonths: 0}}
	assert.Error(t, c.Validate())

	c.Projection.HorizonMonths = 6
	assert.NoError(t, c.Validate())

	c.Scheduler = SchedulerConfig{Enabled: true}
	assert.Error(t, c.Validate())
}
