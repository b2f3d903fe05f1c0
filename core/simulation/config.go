package simulation

import (
	"fmt"
	"time"
)

// BaseLoadConfig shapes the building load random walk.
type BaseLoadConfig struct {
	MinKw            float64 `json:"min_kw"`
	MaxKw            float64 `json:"max_kw"`
	DriftKw          float64 `json:"drift_kw"`
	ShockProbability float64 `json:"shock_probability"`
	ShockMinKw       float64 `json:"shock_min_kw"`
	ShockMaxKw       float64 `json:"shock_max_kw"`
}

// Config drives the tick loop and the site model.
type Config struct {
	PenaltyLimitKw    float64 `json:"penalty_limit_kw"`
	InitialBaseLoadKw float64 `json:"initial_base_load_kw"`
	// Interval is the wall clock period between ticks. Departures count
	// down by it; energy accrues over the policy's tick_minutes.
	Interval         time.Duration  `json:"interval"`
	HistoryWindow    int            `json:"history_window"`
	DecisionFeedSize int            `json:"decision_feed_size"`
	SavingsPerKw     float64        `json:"savings_per_kw"`
	WarningLoadKw    float64        `json:"warning_load_kw"`
	RetireCompleted  bool           `json:"retire_completed"`
	SeedFile         string         `json:"seed_file"`
	RandomSeed       uint64         `json:"random_seed"`
	BaseLoad         BaseLoadConfig `json:"base_load"`
}

// SetDefaults fills zero values with the reference site.
func (c *Config) SetDefaults() {
	if c.PenaltyLimitKw == 0 {
		c.PenaltyLimitKw = 500
	}
	if c.InitialBaseLoadKw == 0 {
		c.InitialBaseLoadKw = 332
	}
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 40
	}
	if c.DecisionFeedSize == 0 {
		c.DecisionFeedSize = 8
	}
	if c.SavingsPerKw == 0 {
		c.SavingsPerKw = 16.5
	}
	if c.WarningLoadKw == 0 {
		c.WarningLoadKw = 460
	}
	b := &c.BaseLoad
	if b.MinKw == 0 {
		b.MinKw = 300
	}
	if b.MaxKw == 0 {
		b.MaxKw = 460
	}
	if b.DriftKw == 0 {
		b.DriftKw = 35
	}
	if b.ShockProbability == 0 {
		b.ShockProbability = 0.35
	}
	if b.ShockMinKw == 0 {
		b.ShockMinKw = 80
	}
	if b.ShockMaxKw == 0 {
		b.ShockMaxKw = 150
	}
}

// Validate rejects settings the tick loop cannot run with.
func (c Config) Validate() error {
	if c.PenaltyLimitKw <= 0 {
		return fmt.Errorf("simulation: penalty_limit_kw must be positive")
	}
	if c.InitialBaseLoadKw < 0 {
		return fmt.Errorf("simulation: initial_base_load_kw must be non-negative")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("simulation: interval must be positive")
	}
	if c.HistoryWindow <= 0 || c.DecisionFeedSize <= 0 {
		return fmt.Errorf("simulation: history_window and decision_feed_size must be positive")
	}
	b := c.BaseLoad
	if b.MinKw < 0 || b.MaxKw < b.MinKw {
		return fmt.Errorf("simulation: base_load range [%v, %v] is invalid", b.MinKw, b.MaxKw)
	}
	if b.ShockProbability < 0 || b.ShockProbability > 1 {
		return fmt.Errorf("simulation: shock_probability must be within [0, 1]")
	}
	if b.ShockMaxKw < b.ShockMinKw {
		return fmt.Errorf("simulation: shock_max_kw below shock_min_kw")
	}
	return nil
}
