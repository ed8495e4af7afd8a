package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pulsecore-go/types"
)

// Config is the monitor's yaml-backed configuration. Zero values fall back
// to the device defaults, so an empty file is a valid config.
type Config struct {
	Device DeviceOverrides `yaml:"device"`
	Log    LogConfig       `yaml:"log"`
	MQTT   MQTTConfig      `yaml:"mqtt"`
}

// DeviceOverrides adjusts the simulated device profile.
type DeviceOverrides struct {
	PulseHighMs      uint32 `yaml:"pulse_high_ms"`
	PulseLowMs       uint32 `yaml:"pulse_low_ms"`
	TolerancePermil  uint32 `yaml:"tolerance_permille"`
	SampleIntervalMs uint32 `yaml:"sample_interval_ms"`
	TimeBudgetMs     uint32 `yaml:"time_budget_ms"`
	MemoryBudget     uint32 `yaml:"memory_budget_bytes"`
	ADCCount         uint16 `yaml:"adc_count"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type MQTTConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// deviceConfig applies the overrides on top of the production profile.
func (c Config) deviceConfig() types.DeviceConfig {
	dev := types.DefaultConfig()
	if c.Device.PulseHighMs != 0 {
		dev.Pulse.HighMs = c.Device.PulseHighMs
	}
	if c.Device.PulseLowMs != 0 {
		dev.Pulse.LowMs = c.Device.PulseLowMs
	}
	// OS timer jitter dwarfs the device-grade tolerance, so the simulated
	// core defaults to a whole phase of slack unless the config pins it.
	dev.Pulse.TolerancePermille = 1000
	if c.Device.TolerancePermil != 0 {
		dev.Pulse.TolerancePermille = c.Device.TolerancePermil
	}
	if c.Device.SampleIntervalMs != 0 {
		dev.Battery.SampleIntervalMs = c.Device.SampleIntervalMs
	}
	if c.Device.TimeBudgetMs != 0 {
		dev.Exec.TimeBudgetMs = c.Device.TimeBudgetMs
	}
	if c.Device.MemoryBudget != 0 {
		dev.Exec.MemoryBudgetBytes = c.Device.MemoryBudget
	}
	return dev
}

// adcCount is the simulated cell reading; defaults to mid-range Normal.
func (c Config) adcCount() uint16 {
	if c.Device.ADCCount != 0 {
		return c.Device.ADCCount
	}
	return 1500
}
