// Package agg builds fixed-interval bars from a trade stream.
package agg

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// barState holds the in-progress bar for one symbol in the current bucket.
type barState struct {
	bucket int64 // bucket start, Unix milliseconds
	bar    model.Bar
}

// Aggregator builds interval bars from a stream of ticks.
// It runs in a single goroutine and emits closed bars when the bucket rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*barState // key = symbol

	interval string
	sizeMs   int64
	log      zerolog.Logger
	now      func() time.Time

	flushInterval time.Duration

	// Metrics hooks (optional, set externally)
	OnDroppedTick func()
}

// New creates an Aggregator producing bars of the given interval label and size.
func New(interval string, size time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		states:        make(map[string]*barState),
		interval:      interval,
		sizeMs:        size.Milliseconds(),
		log:           logger.With().Str("component", "agg").Logger(),
		now:           time.Now,
		flushInterval: 100 * time.Millisecond, // check frequency for bucket rollover
	}
}

// Run consumes ticks, aggregates them into bars, and sends closed bars to
// out. Blocks until ctx is cancelled or ticks is closed. Bars still open at
// exit are discarded, matching an exchange that never closed them.
func (a *Aggregator) Run(ctx context.Context, ticks <-chan model.Tick, out chan<- model.Bar) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-ticks:
			if !ok {
				return
			}
			a.processTick(t, out)

		case <-ticker.C:
			// Periodic flush: emit bars whose bucket ended with no further trade
			a.flushOld(out)
		}
	}
}

// Current returns the in-progress bar for symbol, if any.
func (a *Aggregator) Current(symbol string) (model.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.states[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return s.bar, true
}

func (a *Aggregator) bucketOf(ts time.Time) int64 {
	ms := ts.UnixMilli()
	return ms - ms%a.sizeMs
}

// processTick incorporates a single tick into the bar state.
func (a *Aggregator) processTick(t model.Tick, out chan<- model.Bar) {
	bucket := a.bucketOf(t.TS)

	a.mu.Lock()
	state, exists := a.states[t.Symbol]

	if exists && bucket < state.bucket {
		// Late tick: belongs to a bar already being built past
		a.mu.Unlock()
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return
	}
	defer a.mu.Unlock()

	if exists && bucket > state.bucket {
		a.emit(state, out)
		delete(a.states, t.Symbol)
		exists = false
	}

	if !exists {
		open := time.UnixMilli(bucket).UTC()
		a.states[t.Symbol] = &barState{
			bucket: bucket,
			bar: model.Bar{
				Symbol:    t.Symbol,
				Interval:  a.interval,
				OpenTime:  open,
				CloseTime: open.Add(time.Duration(a.sizeMs-1) * time.Millisecond),
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Close:     t.Price,
				Volume:    t.Qty,
			},
		}
		return
	}

	b := &state.bar
	if t.Price > b.High {
		b.High = t.Price
	}
	if t.Price < b.Low {
		b.Low = t.Price
	}
	b.Close = t.Price
	b.Volume += t.Qty
}

// flushOld emits bars whose bucket has fully elapsed.
func (a *Aggregator) flushOld(out chan<- model.Bar) {
	now := a.now().UnixMilli()

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		if state.bucket+a.sizeMs <= now {
			a.emit(state, out)
			delete(a.states, key)
		}
	}
}

// emit sends a closed bar to out. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *barState, out chan<- model.Bar) {
	state.bar.Closed = true
	select {
	case out <- state.bar:
	default:
		a.log.Warn().Str("key", state.bar.Key()).Time("open_time", state.bar.OpenTime).Msg("bar channel full, dropping bar")
	}
}
