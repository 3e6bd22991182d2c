package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
// A NaN anywhere inside the window makes the value NaN.
type SMA struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	count  int       // total values received
	nans   int       // NaN values currently inside the window
	sum    float64   // sum of the finite values inside the window
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(x float64) {
	if s.count >= s.period {
		// Drop the oldest value being overwritten
		if old := s.buf[s.idx]; math.IsNaN(old) {
			s.nans--
		} else {
			s.sum -= old
		}
	}

	s.buf[s.idx] = x
	if math.IsNaN(x) {
		s.nans++
	} else {
		s.sum += x
	}
	s.idx = (s.idx + 1) % s.period
	s.count++
}

func (s *SMA) Value() float64 {
	if s.count < s.period || s.nans > 0 {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.nans = 0
	s.sum = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// ComputeSMA returns the SMA series of xs.
func ComputeSMA(xs []float64, period int) []float64 {
	return run(NewSMA(period), xs)
}
