package indicator

import "math"

// StochRSI applies a stochastic oscillator to RSI values:
//
//	stoch = 100 * (rsi - min(rsi, length)) / (max(rsi, length) - min(rsi, length))
//	k     = SMA(stoch, smoothK)
//	d     = SMA(k, smoothD)
//
// k is the faster line and d its signal line. A zero RSI range over the
// lookback leaves stoch undefined (NaN).
type StochRSI struct {
	length int
	rsi    *RSI

	ring   []float64 // last `length` RSI values
	idx    int
	filled int

	kSMA *SMA
	dSMA *SMA
	k    float64
	d    float64
}

// NewStochRSI creates a new Stochastic RSI indicator.
func NewStochRSI(length, rsiLength, smoothK, smoothD int) *StochRSI {
	return &StochRSI{
		length: length,
		rsi:    NewRSI(rsiLength),
		ring:   make([]float64, length),
		kSMA:   NewSMA(smoothK),
		dSMA:   NewSMA(smoothD),
		k:      math.NaN(),
		d:      math.NaN(),
	}
}

func (s *StochRSI) Name() string { return "STOCHRSI" }

// Update feeds the next close.
func (s *StochRSI) Update(close float64) {
	s.rsi.Update(close)
	if !s.rsi.Ready() {
		return
	}

	v := s.rsi.Value()
	s.ring[s.idx] = v
	s.idx = (s.idx + 1) % s.length
	if s.filled < s.length {
		s.filled++
		if s.filled < s.length {
			return
		}
	}

	s.kSMA.Update(stochOf(v, s.ring))
	s.k = s.kSMA.Value()
	if s.kSMA.Ready() {
		s.dSMA.Update(s.k)
		s.d = s.dSMA.Value()
	}
}

// stochOf normalizes v into the [min,max] range of window.
func stochOf(v float64, window []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range window {
		if math.IsNaN(x) {
			return math.NaN()
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if !(hi > lo) {
		return math.NaN()
	}
	return 100 * (v - lo) / (hi - lo)
}

// K returns the fast line.
func (s *StochRSI) K() float64 { return s.k }

// D returns the signal line.
func (s *StochRSI) D() float64 { return s.d }

// Value returns the fast line, matching Calculator semantics.
func (s *StochRSI) Value() float64 { return s.k }

func (s *StochRSI) Ready() bool { return s.dSMA.Ready() }

// ComputeStochRSI returns the k and d series for closes.
func ComputeStochRSI(closes []float64, length, rsiLength, smoothK, smoothD int) (k, d []float64) {
	k, d = nanSeries(len(closes)), nanSeries(len(closes))
	s := NewStochRSI(length, rsiLength, smoothK, smoothD)
	for i, c := range closes {
		s.Update(c)
		k[i] = s.K()
		d[i] = s.D()
	}
	return k, d
}
