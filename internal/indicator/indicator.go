// Package indicator provides technical indicator calculations over price series.
//
// Every indicator exists in two forms: an incremental calculator fed one value
// at a time (O(1) per update), and a Compute* batch function that drives the
// calculator over a whole series and returns the full output series. The batch
// functions are pure: they allocate their own state on every call, so running
// them on a window always gives the same answer for the same input.
//
// Undefined values (warm-up, division by zero) are NaN, never an error.
package indicator

import "math"

// Calculator is the interface implemented by the single-input calculators.
type Calculator interface {
	// Name returns the indicator name (e.g. "EMA", "RSI").
	Name() string

	// Update feeds the next value of the series.
	Update(x float64)

	// Value returns the current value, NaN until Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// nanSeries returns a slice of n NaN values.
func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// run drives c over xs and collects its value after each input.
func run(c Calculator, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		c.Update(x)
		out[i] = c.Value()
	}
	return out
}

// Last returns the final element of xs, or NaN for an empty series.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}
