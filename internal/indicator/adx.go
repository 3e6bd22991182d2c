package indicator

import "math"

// ADX calculates Wilder's Average Directional Index together with the
// +DI/-DI lines. All three are smoothed with RMA over the same period.
//
// The first bar has no previous close, so the smoothed true range is first
// defined on bar `period`, the DI lines there too, and ADX on bar 2*period-1.
// An undefined DX (both DI lines zero or NaN) is skipped by the smoothing, so
// ADX holds its last value through such bars instead of turning NaN.
type ADX struct {
	period int

	trRMA    *RMA
	plusRMA  *RMA
	minusRMA *RMA
	dxRMA    *RMA

	count     int
	prevHigh  float64
	prevLow   float64
	prevClose float64

	adx     float64
	plusDI  float64
	minusDI float64
}

// NewADX creates a new ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{
		period:   period,
		trRMA:    NewRMA(period),
		plusRMA:  NewRMA(period),
		minusRMA: NewRMA(period),
		dxRMA:    NewRMA(period),
		adx:      math.NaN(),
		plusDI:   math.NaN(),
		minusDI:  math.NaN(),
	}
}

func (a *ADX) Name() string { return "ADX" }

// Update feeds the next bar.
func (a *ADX) Update(high, low, close float64) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = high, low, close
		return
	}

	upMove := high - a.prevHigh
	downMove := a.prevLow - low
	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	tr := TrueRange(high, low, a.prevClose)
	a.prevHigh, a.prevLow, a.prevClose = high, low, close

	a.trRMA.Update(tr)
	a.plusRMA.Update(plusDM)
	a.minusRMA.Update(minusDM)
	if !a.trRMA.Ready() {
		return
	}

	a.plusDI, a.minusDI = math.NaN(), math.NaN()
	if atr := a.trRMA.Value(); atr > 0 {
		a.plusDI = 100 * a.plusRMA.Value() / atr
		a.minusDI = 100 * a.minusRMA.Value() / atr
	}

	dx := math.NaN()
	if sum := a.plusDI + a.minusDI; sum > 0 {
		dx = 100 * math.Abs(a.plusDI-a.minusDI) / sum
	}
	a.dxRMA.Update(dx)
	a.adx = a.dxRMA.Value()
}

// Value returns the ADX line.
func (a *ADX) Value() float64 { return a.adx }

// PlusDI returns the +DI line.
func (a *ADX) PlusDI() float64 { return a.plusDI }

// MinusDI returns the -DI line.
func (a *ADX) MinusDI() float64 { return a.minusDI }

func (a *ADX) Ready() bool { return a.dxRMA.Ready() }

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ComputeADX returns the ADX, +DI and -DI series. Inputs are truncated to the
// shortest of the three slices.
func ComputeADX(high, low, close []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(close)
	if len(high) < n {
		n = len(high)
	}
	if len(low) < n {
		n = len(low)
	}

	adx, plusDI, minusDI = nanSeries(n), nanSeries(n), nanSeries(n)
	a := NewADX(period)
	for i := 0; i < n; i++ {
		a.Update(high[i], low[i], close[i])
		adx[i] = a.Value()
		plusDI[i] = a.PlusDI()
		minusDI[i] = a.MinusDI()
	}
	return adx, plusDI, minusDI
}
