package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Historian.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Windows.Descendant)
	assert.Equal(t, 12*time.Hour, cfg.Windows.Ascendant)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Boundary)
	assert.Positive(t, cfg.WorkerCount)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
rest_port: ":8081"
limit_dt: 2023-06-01T00:00:00Z
historian:
  driver: influx
  interface_group: Plant
  influx:
    url: http://influx:8086
    bucket: traces
timeouts:
  read: 20s
windows:
  descendant: 3h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("INTERFACE_NAME", "Line1")
	t.Setenv("WORKER_COUNT", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.RESTPort)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), cfg.LimitDT.UTC())
	assert.Equal(t, DriverInflux, cfg.Historian.Driver)
	assert.Equal(t, "Plant", cfg.Historian.InterfaceGroup)
	assert.Equal(t, "Line1", cfg.Historian.InterfaceName)
	assert.Equal(t, "traces", cfg.Historian.Influx.Bucket)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Read)
	assert.Equal(t, 3*time.Hour, cfg.Windows.Descendant)
	assert.Equal(t, 3, cfg.WorkerCount)
	// не переопределённые ключи сохраняют значения по умолчанию
	assert.Equal(t, 12*time.Hour, cfg.Windows.Ascendant)
}

func TestLoadConfig_InvalidLimit(t *testing.T) {
	t.Setenv("LIMIT_DT", "yesterday")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Historian.Driver = "csv"
	cfg.WorkerCount = 0
	cfg.Windows.Ascendant = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown historian driver")
	assert.Contains(t, err.Error(), "worker_count")
	assert.Contains(t, err.Error(), "windows.ascendant")
}
