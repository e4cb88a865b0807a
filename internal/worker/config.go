package worker

import (
	"fmt"
	"strings"
)

// StrategyKind tags the side-resolution variant a worker runs.
type StrategyKind string

const (
	// StaticSignal trades a fixed symbol, passing the entry signal through.
	StaticSignal StrategyKind = "static_signal"
	// StaticReverse trades a fixed symbol against the account's exposure
	// bias.
	StaticReverse StrategyKind = "static_reverse"
	// DynamicVolume discovers instruments ranked by 24h quote volume and
	// enters only when the signal agrees with the contrarian bias.
	DynamicVolume StrategyKind = "dynamic_volume"
	// DynamicVolatility discovers instruments ranked by price volatility.
	DynamicVolatility StrategyKind = "dynamic_volatility"
	// DynamicCombined blends both directions with optional per-side
	// take-profit and stop-loss overrides.
	DynamicCombined StrategyKind = "dynamic_combined"
)

// SideConfig overrides exit thresholds for one direction of a combined
// strategy. Nil fields fall back to the worker-level values.
type SideConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	TP      *float64 `json:"tp" yaml:"tp"`
	SL      *float64 `json:"sl" yaml:"sl"`
}

// Strategy is the tagged variant controlling side resolution.
type Strategy struct {
	Kind     StrategyKind `json:"kind" yaml:"kind"`
	BuySide  *SideConfig  `json:"buy_side" yaml:"buy_side"`
	SellSide *SideConfig  `json:"sell_side" yaml:"sell_side"`
}

// Config is a worker's immutable trading parameters.
type Config struct {
	Symbol   string  `json:"symbol" yaml:"symbol"` // static strategies only
	Leverage int     `json:"leverage" yaml:"leverage"`
	Percent  float64 `json:"percent" yaml:"percent"` // percent of balance per trade

	TP         *float64 `json:"tp" yaml:"tp"` // ROI %, nil disables
	SL         *float64 `json:"sl" yaml:"sl"` // positive ROI %, nil disables
	RoiTrigger *float64 `json:"roi_trigger" yaml:"roi_trigger"`

	PyramidCount int     `json:"pyramid_count" yaml:"pyramid_count"`
	PyramidStep  float64 `json:"pyramid_step" yaml:"pyramid_step"` // ROI % between additions

	ReverseOnStop      bool `json:"reverse_on_stop" yaml:"reverse_on_stop"`
	ReverseOnSellClose bool `json:"reverse_on_sell_close" yaml:"reverse_on_sell_close"`

	Strategy Strategy `json:"strategy" yaml:"strategy"`
}

// Validate rejects configurations that must never reach the exchange.
func (c *Config) Validate() error {
	if c.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", c.Leverage)
	}
	if c.Percent <= 0 || c.Percent > 100 {
		return fmt.Errorf("percent must be in (0, 100], got %v", c.Percent)
	}
	if c.SL != nil && *c.SL <= 0 {
		return fmt.Errorf("stop-loss must be positive, got %v", *c.SL)
	}
	if c.PyramidCount < 0 {
		return fmt.Errorf("pyramid count must not be negative, got %d", c.PyramidCount)
	}
	if c.PyramidCount > 0 && c.PyramidStep <= 0 {
		return fmt.Errorf("pyramid step must be positive when pyramiding is enabled")
	}
	switch c.Strategy.Kind {
	case StaticSignal, StaticReverse:
		if strings.TrimSpace(c.Symbol) == "" {
			return fmt.Errorf("static strategies require a symbol")
		}
	case DynamicVolume, DynamicVolatility:
	case DynamicCombined:
		if !sideEnabled(c.Strategy.BuySide) && !sideEnabled(c.Strategy.SellSide) {
			return fmt.Errorf("combined strategy requires at least one enabled side")
		}
	default:
		return fmt.Errorf("unknown strategy kind %q", c.Strategy.Kind)
	}
	return nil
}

// PyramidingEnabled reports whether the drawdown ladder is active.
func (c *Config) PyramidingEnabled() bool {
	return c.PyramidCount > 0 && c.PyramidStep > 0
}

// Static reports whether the worker trades a fixed symbol.
func (c *Config) Static() bool {
	return c.Strategy.Kind == StaticSignal || c.Strategy.Kind == StaticReverse
}

// TPFor returns the take-profit threshold for a side, honoring combined
// per-side overrides.
func (c *Config) TPFor(side string) *float64 {
	if s := c.sideConfig(side); s != nil && s.TP != nil {
		return s.TP
	}
	return c.TP
}

// SLFor returns the stop-loss threshold for a side, honoring combined
// per-side overrides.
func (c *Config) SLFor(side string) *float64 {
	if s := c.sideConfig(side); s != nil && s.SL != nil {
		return s.SL
	}
	return c.SL
}

func (c *Config) sideConfig(side string) *SideConfig {
	if c.Strategy.Kind != DynamicCombined {
		return nil
	}
	if side == "BUY" {
		return c.Strategy.BuySide
	}
	return c.Strategy.SellSide
}

func sideEnabled(s *SideConfig) bool {
	return s != nil && s.Enabled
}
