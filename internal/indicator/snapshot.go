package indicator

import "trendbot/internal/model"

// Params selects the periods used to build an IndicatorSnapshot.
type Params struct {
	ADXPeriod   int
	EMALong     int
	EMAShort    int
	RSILength   int
	StochLength int
	SmoothK     int
	SmoothD     int
}

// WarmupBars returns the number of bars after which every snapshot value is
// defined (assuming the prices actually move).
func (p Params) WarmupBars() int {
	n := 2 * p.ADXPeriod
	if s := p.RSILength + p.StochLength + p.SmoothK + p.SmoothD - 2; s > n {
		n = s
	}
	if p.EMALong > n {
		n = p.EMALong
	}
	if p.EMAShort > n {
		n = p.EMAShort
	}
	return n
}

// Columns splits bars into high, low and close series.
func Columns(bars []model.Bar) (high, low, close []float64) {
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	close = make([]float64, len(bars))
	for i := range bars {
		high[i] = bars[i].High
		low[i] = bars[i].Low
		close[i] = bars[i].Close
	}
	return high, low, close
}

// Compute recomputes every indicator over bars (oldest first) and returns the
// values at the last bar.
func Compute(bars []model.Bar, p Params) model.IndicatorSnapshot {
	high, low, close := Columns(bars)

	adx, plusDI, minusDI := ComputeADX(high, low, close, p.ADXPeriod)
	k, d := ComputeStochRSI(close, p.StochLength, p.RSILength, p.SmoothK, p.SmoothD)

	return model.IndicatorSnapshot{
		ADX:      Last(adx),
		PlusDI:   Last(plusDI),
		MinusDI:  Last(minusDI),
		StochK:   Last(k),
		StochD:   Last(d),
		EMALong:  Last(ComputeEMA(close, p.EMALong)),
		EMAShort: Last(ComputeEMA(close, p.EMAShort)),
	}
}
