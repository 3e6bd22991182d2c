package indicator

import "math"

// RMA calculates Wilder's moving average (an EMA with alpha = 1/period).
// First value is SMA(period), then RMA = (prev*(period-1) + x) / period.
// NaN inputs are skipped: they neither seed nor move the average.
type RMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewRMA creates a new RMA indicator with the given period.
func NewRMA(period int) *RMA {
	return &RMA{period: period}
}

func (r *RMA) Name() string { return "RMA" }

func (r *RMA) Update(x float64) {
	if math.IsNaN(x) {
		return
	}
	r.count++

	if r.count <= r.period {
		// Accumulate for initial SMA seed
		r.sum += x
		if r.count == r.period {
			r.current = r.sum / float64(r.period)
		}
		return
	}

	// Wilder-style smoothing
	r.current = (r.current*float64(r.period-1) + x) / float64(r.period)
}

func (r *RMA) Value() float64 {
	if !r.Ready() {
		return math.NaN()
	}
	return r.current
}

func (r *RMA) Ready() bool { return r.count >= r.period }

// Reset clears the RMA state for reuse.
func (r *RMA) Reset() {
	r.count = 0
	r.sum = 0
	r.current = 0
}

// ComputeRMA returns the Wilder-smoothed series of xs.
func ComputeRMA(xs []float64, period int) []float64 {
	return run(NewRMA(period), xs)
}
