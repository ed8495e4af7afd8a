package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyConfigPathUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	dev := cfg.deviceConfig()
	require.Equal(t, uint32(2), dev.Pulse.HighMs)
	require.Equal(t, uint32(498), dev.Pulse.LowMs)
	require.Equal(t, uint16(1500), cfg.adcCount())
}

func TestConfigOverridesApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  pulse_high_ms: 100
  pulse_low_ms: 400
  sample_interval_ms: 50
  time_budget_ms: 250
  adc_count: 1300
mqtt:
  url: mqtt://broker.local:1883
  prefix: bench/rig7
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	dev := cfg.deviceConfig()
	require.Equal(t, uint32(100), dev.Pulse.HighMs)
	require.Equal(t, uint32(400), dev.Pulse.LowMs)
	require.Equal(t, uint32(50), dev.Battery.SampleIntervalMs)
	require.Equal(t, uint32(250), dev.Exec.TimeBudgetMs)
	require.Equal(t, uint16(1300), cfg.adcCount())
	require.Equal(t, "mqtt://broker.local:1883", cfg.MQTT.URL)
	require.Equal(t, "bench/rig7", cfg.MQTT.Prefix)
}

func TestHostToleranceLoosenedUnlessPinned(t *testing.T) {
	var cfg Config
	require.Equal(t, uint32(1000), cfg.deviceConfig().Pulse.TolerancePermille)

	cfg.Device.TolerancePermil = 25
	require.Equal(t, uint32(25), cfg.deviceConfig().Pulse.TolerancePermille)
}

func TestMissingConfigFileIsAnError(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
