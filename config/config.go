package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/peakguard/core/allocation"
	"github.com/kilianp07/peakguard/core/eventlog"
	"github.com/kilianp07/peakguard/core/metrics"
	"github.com/kilianp07/peakguard/core/simulation"
	"github.com/kilianp07/peakguard/infra/llm"
	"github.com/kilianp07/peakguard/infra/mqtt"
)

// EnvPrefix marks environment overrides: K_SIMULATION__INTERVAL=2s sets
// simulation.interval.
const EnvPrefix = "K_"

type Config struct {
	Simulation simulation.Config `json:"simulation"`
	Allocation allocation.Policy `json:"allocation"`
	External   llm.Config        `json:"external"`
	EventLog   eventlog.Config   `json:"event_log"`
	Metrics    metrics.Config    `json:"metrics"`
	MQTT       mqtt.Config       `json:"mqtt"`
	HTTP       HTTPConfig        `json:"http"`
	Sentry     SentryConfig      `json:"sentry"`
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path yields the defaults plus overrides.
// Values are decoded over Default, so a key set to 0 keeps that 0.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.Simulation.SetDefaults()
	cfg.Allocation.SetDefaults()
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills the sections whose zero values are never meaningful.
// Simulation and allocation tunables take theirs from Default only.
func (c *Config) SetDefaults() {
	c.External.SetDefaults()
	c.EventLog.SetDefaults()
	c.MQTT.SetDefaults()
	c.HTTP.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	return errors.Join(
		c.Simulation.Validate(),
		c.Allocation.Validate(),
		c.External.Validate(),
		c.EventLog.Validate(),
		c.MQTT.Validate(),
		c.HTTP.Validate(),
		c.Sentry.Validate(),
	)
}
