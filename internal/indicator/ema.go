package indicator

import "math"

// EMA calculates Exponential Moving Average.
// The first value is the simple average of the first `period` inputs, then
// EMA = price*k + prev*(1-k) with k = 2/(period+1). NaN inputs are skipped.
// O(1) per update, no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	if math.IsNaN(price) {
		return
	}
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return math.NaN()
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// ComputeEMA returns the EMA series of xs with a simple-average seed.
func ComputeEMA(xs []float64, length int) []float64 {
	return run(NewEMA(length), xs)
}
