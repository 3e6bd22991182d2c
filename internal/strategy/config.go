package strategy

import (
	"errors"
	"fmt"
	"math"

	"trendbot/internal/indicator"
)

// Config is the immutable parameter bundle of the ADX/EMA/Stoch-RSI trend
// strategy. Percentages are fractions (0.03 = 3%).
type Config struct {
	ADXPeriod int     `yaml:"adx_period"`
	ADXLevel  float64 `yaml:"adx_level"`
	ADXDiff   float64 `yaml:"adx_diff"`

	EMALong  int `yaml:"ema_long"`
	EMAShort int `yaml:"ema_short"`

	StochLength int     `yaml:"stoch_length"`
	RSILength   int     `yaml:"rsi_length"`
	SmoothK     int     `yaml:"smooth_k"`
	SmoothD     int     `yaml:"smooth_d"`
	Overbought  float64 `yaml:"overbought"`
	Oversold    float64 `yaml:"oversold"`

	StopLossPct           float64 `yaml:"stop_loss_pct"`
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
	TrailingExecPct       float64 `yaml:"trailing_exec_pct"`

	// WindowSize is the number of closed bars kept for indicator recomputation.
	WindowSize int `yaml:"window_size"`
}

// DefaultConfig returns the reference parameter set.
func DefaultConfig() Config {
	return Config{
		ADXPeriod:             14,
		ADXLevel:              20,
		ADXDiff:               1.0,
		EMALong:               20,
		EMAShort:              10,
		StochLength:           14,
		RSILength:             14,
		SmoothK:               3,
		SmoothD:               3,
		Overbought:            80,
		Oversold:              20,
		StopLossPct:           0.03,
		TakeProfitPct:         0.16,
		TrailingActivationPct: 0.01,
		TrailingExecPct:       0.001,
		WindowSize:            250,
	}
}

// Params returns the indicator periods of the configuration.
func (c Config) Params() indicator.Params {
	return indicator.Params{
		ADXPeriod:   c.ADXPeriod,
		EMALong:     c.EMALong,
		EMAShort:    c.EMAShort,
		RSILength:   c.RSILength,
		StochLength: c.StochLength,
		SmoothK:     c.SmoothK,
		SmoothD:     c.SmoothD,
	}
}

// WarmupBars returns the number of closed bars needed before every indicator
// value is defined.
func (c Config) WarmupBars() int {
	return c.Params().WarmupBars()
}

// Validate checks every parameter and returns a *ConfigurationError listing
// all violations, or nil.
func (c Config) Validate() error {
	var errs []error

	periods := []struct {
		name string
		v    int
	}{
		{"adx_period", c.ADXPeriod},
		{"ema_long", c.EMALong},
		{"ema_short", c.EMAShort},
		{"stoch_length", c.StochLength},
		{"rsi_length", c.RSILength},
		{"smooth_k", c.SmoothK},
		{"smooth_d", c.SmoothD},
	}
	periodsOK := true
	for _, p := range periods {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.v))
			periodsOK = false
		}
	}

	if !inRange(c.ADXLevel, 0, 100) {
		errs = append(errs, fmt.Errorf("adx_level must be within [0,100], got %v", c.ADXLevel))
	}
	if !inRange(c.ADXDiff, 0, 100) {
		errs = append(errs, fmt.Errorf("adx_diff must be within [0,100], got %v", c.ADXDiff))
	}
	if !inRange(c.Overbought, 0, 100) {
		errs = append(errs, fmt.Errorf("overbought must be within [0,100], got %v", c.Overbought))
	}
	if !inRange(c.Oversold, 0, 100) {
		errs = append(errs, fmt.Errorf("oversold must be within [0,100], got %v", c.Oversold))
	}
	if c.Oversold >= c.Overbought {
		errs = append(errs, fmt.Errorf("oversold (%v) must be below overbought (%v)", c.Oversold, c.Overbought))
	}

	// Short-side levels are entry*(1-pct), so every percentage stays below 1.
	pcts := []struct {
		name string
		v    float64
	}{
		{"stop_loss_pct", c.StopLossPct},
		{"take_profit_pct", c.TakeProfitPct},
		{"trailing_activation_pct", c.TrailingActivationPct},
		{"trailing_exec_pct", c.TrailingExecPct},
	}
	for _, p := range pcts {
		if !(p.v > 0 && p.v < 1) {
			errs = append(errs, fmt.Errorf("%s must be within (0,1), got %v", p.name, p.v))
		}
	}

	if periodsOK && c.WindowSize < c.WarmupBars() {
		errs = append(errs, fmt.Errorf("window_size %d is smaller than the %d bars needed for warm-up", c.WindowSize, c.WarmupBars()))
	}

	if len(errs) > 0 {
		return &ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
