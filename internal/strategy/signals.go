package strategy

import (
	"math"

	"trendbot/internal/model"
)

// SignalSet holds the boolean conditions derived from one indicator snapshot
// and the latest close. It carries no memory of earlier bars.
type SignalSet struct {
	TrendUpStrong     bool
	TrendDownStrong   bool
	WeakeningForLong  bool
	WeakeningForShort bool

	AboveEMA      bool
	BelowEMA      bool
	AboveShortEMA bool
	BelowShortEMA bool

	StochOverbought bool
	StochOversold   bool
	StochRising     bool
	StochFalling    bool
}

// Evaluate derives the signal set. Any undefined input yields the zero set
// (no signal).
func Evaluate(s model.IndicatorSnapshot, close float64, cfg Config) SignalSet {
	if !s.Valid() || math.IsNaN(close) || math.IsInf(close, 0) {
		return SignalSet{}
	}

	return SignalSet{
		TrendUpStrong:     s.PlusDI > s.MinusDI && s.PlusDI > cfg.ADXLevel && s.PlusDI-s.MinusDI > cfg.ADXDiff,
		TrendDownStrong:   s.MinusDI > s.PlusDI && s.MinusDI > cfg.ADXLevel && s.MinusDI-s.PlusDI > cfg.ADXDiff,
		WeakeningForLong:  s.PlusDI < s.MinusDI || s.PlusDI < cfg.ADXLevel,
		WeakeningForShort: s.MinusDI < s.PlusDI || s.MinusDI < cfg.ADXLevel,

		AboveEMA:      close > s.EMALong,
		BelowEMA:      close < s.EMALong,
		AboveShortEMA: close > s.EMAShort,
		BelowShortEMA: close < s.EMAShort,

		StochOverbought: s.StochK >= cfg.Overbought && s.StochD >= cfg.Overbought,
		StochOversold:   s.StochK <= cfg.Oversold && s.StochD <= cfg.Oversold,
		StochRising:     s.StochK > s.StochD,
		StochFalling:    s.StochK < s.StochD,
	}
}
