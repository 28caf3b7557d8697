package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the optional YAML file named by CONSOLE_CONFIG.
// Only polling cadence can be tuned there; everything else stays in env.
type fileOverlay struct {
	Polling struct {
		ActiveInterval      string `yaml:"active_interval"`
		HistoryFastInterval string `yaml:"history_fast_interval"`
		HistorySlowInterval string `yaml:"history_slow_interval"`
	} `yaml:"polling"`
}

// ApplyFile overlays values from a YAML file. Env values that are already set win.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("CONSOLE_CONFIG: %w", err)
	}
	return c.applyYAML(data)
}

func (c *Config) applyYAML(data []byte) error {
	var f fileOverlay
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("CONSOLE_CONFIG: %w", err)
	}
	if err := overlayDuration(&c.Polling.ActiveInterval, f.Polling.ActiveInterval, "polling.active_interval"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Polling.HistoryFastInterval, f.Polling.HistoryFastInterval, "polling.history_fast_interval"); err != nil {
		return err
	}
	return overlayDuration(&c.Polling.HistorySlowInterval, f.Polling.HistorySlowInterval, "polling.history_slow_interval")
}

func overlayDuration(dst *time.Duration, raw, name string) error {
	if raw == "" || *dst != 0 {
		return nil
	}
	if raw == "manual" {
		*dst = ManualOnly
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("CONSOLE_CONFIG: %s must be a duration, got %q", name, raw)
	}
	*dst = d
	return nil
}
