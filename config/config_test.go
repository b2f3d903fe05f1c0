package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `simulation:
  penalty_limit_kw: 450
  interval: 2s
  retire_completed: true
  random_seed: 42
  base_load:
    max_kw: 420
allocation:
  throttle_tolerance_kw: 5
external:
  enabled: true
  url: "http://allocator.local/v1/allocate"
  timeout_ms: 1500
event_log:
  backend: sqlite
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "prometheus"
    - type: "influx"
      conf:
        url: "http://influx:8086"
        bucket: "peakguard"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  topic_prefix: "depot/oak"
http:
  token: "secret"
sentry:
  traces_sample_rate: 0.2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 450.0, cfg.Simulation.PenaltyLimitKw)
	assert.Equal(t, 2*time.Second, cfg.Simulation.Interval)
	assert.True(t, cfg.Simulation.RetireCompleted)
	assert.Equal(t, uint64(42), cfg.Simulation.RandomSeed)
	assert.Equal(t, 420.0, cfg.Simulation.BaseLoad.MaxKw)
	assert.Equal(t, 300.0, cfg.Simulation.BaseLoad.MinKw)
	assert.Equal(t, 5.0, cfg.Allocation.ThrottleToleranceKw)
	assert.Equal(t, 3.0, cfg.Allocation.EnergyWeight)
	assert.Equal(t, 1500*time.Millisecond, cfg.External.Timeout())
	assert.Equal(t, "data/events.db", cfg.EventLog.Path)
	require.Len(t, cfg.Metrics.Sinks, 2)
	assert.Equal(t, "influx", cfg.Metrics.Sinks[1].Type)
	assert.Equal(t, "peakguard", cfg.Metrics.Sinks[1].Conf["bucket"])
	assert.Equal(t, "depot/oak/state", cfg.MQTT.StateTopic())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "secret", cfg.HTTP.Token)
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"simulation":{"history_window":20},"http":{"addr":":9000"}}`)
	t.Setenv("K_HTTP__ADDR", ":9999")
	t.Setenv("K_SIMULATION__INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Simulation.HistoryWindow)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.Interval)
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	path := writeConfig(t, "config.yaml", `simulation:
  base_load:
    shock_probability: 0
allocation:
  throttle_tolerance_kw: 0
`)
	t.Setenv("K_ALLOCATION__READY_EPSILON_KWH", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Simulation.BaseLoad.ShockProbability)
	assert.Equal(t, 0.0, cfg.Allocation.ThrottleToleranceKw)
	assert.Equal(t, 0.0, cfg.Allocation.ReadyEpsilonKwh)
	assert.Equal(t, 80.0, cfg.Simulation.BaseLoad.ShockMinKw)
	assert.Equal(t, 3.0, cfg.Allocation.EnergyWeight)

	_, err = Load(writeConfig(t, "zero.yaml", "allocation:\n  tick_minutes: 0\n"))
	assert.ErrorContains(t, err, "tick_minutes")
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, *Default(), *cfg)
	assert.Equal(t, 500.0, cfg.Simulation.PenaltyLimitKw)
	assert.Equal(t, 5*time.Second, cfg.Simulation.Interval)
	assert.Equal(t, 4*time.Second, cfg.External.Timeout())
	assert.False(t, cfg.External.Enabled)
	assert.Equal(t, "memory", cfg.EventLog.Backend)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "a = 1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "bad.yaml", `event_log:
  backend: postgres
external:
  enabled: true
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "postgres")
	assert.ErrorContains(t, err, "url is required")
}
