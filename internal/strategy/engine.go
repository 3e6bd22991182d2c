// Package strategy implements the ADX/EMA/Stochastic-RSI trend strategy: a
// pure signal evaluator, a position state machine with protective exits, and
// the Engine that drives them from a single ordered stream of bars and ticks.
//
// The Engine is single-threaded. It never performs I/O: decisions leave
// through channels with non-blocking sends, so a slow or failing collaborator
// can never stall or corrupt position state.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trendbot/internal/indicator"
	"trendbot/internal/logger"
	"trendbot/internal/metrics"
	"trendbot/internal/model"
	"trendbot/internal/window"
)

// Options are the optional collaborators of an Engine.
type Options struct {
	Symbol   string
	Interval string
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // nil disables metrics

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Outputs are the channels an Engine publishes to while running. Sends never
// block: when a channel is full the value is dropped and counted.
type Outputs struct {
	Decisions chan<- model.Decision
	Bars      chan<- model.Bar // accepted closed bars
}

// Engine owns the rolling window and the position of one symbol.
type Engine struct {
	cfg    Config
	symbol string
	params indicator.Params

	win     *window.Window
	pos     Position
	lastBar time.Time // open time of the last accepted bar
	lastEnd time.Time // close time of the last accepted bar
	decided time.Time // open time of the last bar run through the state machine
	snap    model.IndicatorSnapshot

	// blockEntry is set by a tick exit and consumed by the next closed bar.
	blockEntry bool

	log   zerolog.Logger
	prom  *metrics.Metrics
	now   func() time.Time
	newID func() string

	// compute is replaceable in tests to drive the state machine with
	// synthetic indicator values.
	compute func(bars []model.Bar, p indicator.Params) model.IndicatorSnapshot
}

// NewEngine validates cfg and returns a flat engine with an empty window.
func NewEngine(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		symbol:  opts.Symbol,
		params:  cfg.Params(),
		win:     window.New(cfg.WindowSize),
		log:     logger.Component(opts.Logger, "engine").With().Str("symbol", opts.Symbol).Str("interval", opts.Interval).Logger(),
		prom:    opts.Metrics,
		now:     opts.Now,
		newID:   opts.NewID,
		compute: indicator.Compute,
		snap:    nanSnapshot(),
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Position returns a read-only view of the current position.
func (e *Engine) Position() model.PositionView { return e.pos.View(e.symbol) }

// Snapshot returns the indicator values computed on the last closed bar.
func (e *Engine) Snapshot() model.IndicatorSnapshot { return e.snap }

// WindowLen returns the number of bars held in the rolling window.
func (e *Engine) WindowLen() int { return e.win.Len() }

// LastBarTime returns the open time of the last accepted bar.
func (e *Engine) LastBarTime() time.Time { return e.lastBar }

// validate checks bar against the ingestion rules without touching state.
func (e *Engine) validate(bar model.Bar) error {
	if bar.OpenTime.IsZero() {
		return fmt.Errorf("%w: missing open time", ErrMalformedBar)
	}
	if e.symbol != "" && bar.Symbol != "" && bar.Symbol != e.symbol {
		return fmt.Errorf("%w: symbol %s, engine trades %s", ErrMalformedBar, bar.Symbol, e.symbol)
	}
	for _, p := range [...]float64{bar.Open, bar.High, bar.Low, bar.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: price %v at %s", ErrMalformedBar, p, bar.OpenTime.Format(time.RFC3339))
		}
	}
	if bar.High < math.Max(bar.Open, bar.Close) || bar.Low > math.Min(bar.Open, bar.Close) {
		return fmt.Errorf("%w: inconsistent range o=%v h=%v l=%v c=%v", ErrMalformedBar, bar.Open, bar.High, bar.Low, bar.Close)
	}
	if !e.lastBar.IsZero() && !bar.OpenTime.After(e.lastBar) {
		return fmt.Errorf("%w: %s is not after %s", ErrStaleBar, bar.OpenTime.Format(time.RFC3339), e.lastBar.Format(time.RFC3339))
	}
	return nil
}

// accept validates and appends bar to the window.
func (e *Engine) accept(bar model.Bar) error {
	if err := e.validate(bar); err != nil {
		if e.prom != nil {
			kind := "malformed"
			if errors.Is(err, ErrStaleBar) {
				kind = "stale"
			}
			e.prom.BarsRejected.WithLabelValues(kind).Inc()
		}
		return err
	}

	e.win.Push(bar)
	e.lastBar = bar.OpenTime
	e.lastEnd = bar.CloseTime
	if e.lastEnd.IsZero() {
		e.lastEnd = bar.OpenTime
	}
	if e.prom != nil {
		e.prom.BarsTotal.Inc()
		e.prom.WindowLen.Set(float64(e.win.Len()))
	}
	return nil
}

// Warmup preloads historical bars (oldest first) without trading. Invalid or
// out-of-order bars are skipped. Returns the number of bars accepted.
func (e *Engine) Warmup(bars []model.Bar) int {
	accepted := 0
	for _, b := range bars {
		if err := e.accept(b); err != nil {
			e.log.Debug().Err(err).Msg("warm-up bar skipped")
			continue
		}
		accepted++
	}
	if accepted > 0 {
		e.snap = e.compute(e.win.Slice(), e.params)
	}
	e.log.Info().
		Int("accepted", accepted).
		Int("offered", len(bars)).
		Int("window", e.win.Len()).
		Int("warmup_bars", e.cfg.WarmupBars()).
		Msg("warm-up complete")
	return accepted
}

// OnBarClosed ingests one closed bar and returns the resulting intent, if
// any. A stale or malformed bar returns ErrStaleBar or ErrMalformedBar and
// leaves the engine unchanged.
func (e *Engine) OnBarClosed(bar model.Bar) (*model.OrderIntent, error) {
	d, err := e.onBar(bar)
	if d == nil {
		return nil, err
	}
	return &d.Intent, nil
}

func (e *Engine) onBar(bar model.Bar) (*model.Decision, error) {
	if err := e.accept(bar); err != nil {
		return nil, err
	}

	traceID := logger.GenerateTraceID(e.symbol, bar.OpenTime)
	return e.decide(traceID), nil
}

// ComputeAndDecide recomputes indicators over w, evaluates signals on its
// newest bar and advances the position. w is normally the engine's own window.
// A bar is decided at most once: nil is returned when the newest bar of w is
// not after the last decided bar.
func (e *Engine) ComputeAndDecide(w *window.Window) *model.OrderIntent {
	last, ok := w.Last()
	if !ok || !last.OpenTime.After(e.decided) {
		return nil
	}
	d := e.decideOn(w, last, logger.GenerateTraceID(e.symbol, last.OpenTime))
	if d == nil {
		return nil
	}
	return &d.Intent
}

func (e *Engine) decide(traceID string) *model.Decision {
	last, _ := e.win.Last()
	return e.decideOn(e.win, last, traceID)
}

func (e *Engine) decideOn(w *window.Window, bar model.Bar, traceID string) *model.Decision {
	start := time.Now()
	log := e.log.With().Str("trace_id", traceID).Logger()

	e.decided = bar.OpenTime
	e.snap = e.compute(w.Slice(), e.params)
	sig := Evaluate(e.snap, bar.Close, e.cfg)

	allowEntry := !e.blockEntry
	e.blockEntry = false

	before := e.pos
	next, tr := Step(e.pos, bar, sig, e.cfg, allowEntry)
	e.pos = next

	if e.prom != nil {
		e.prom.DecideDur.Observe(time.Since(start).Seconds())
		e.prom.PositionSide.Set(metrics.SideValue(e.pos.Side()))
	}

	if !e.snap.Valid() {
		log.Debug().Int("window", w.Len()).Msg("indicators warming up")
	}
	if tr == nil {
		return nil
	}

	d := e.record(before, tr, bar.OpenTime, traceID)
	log.Info().
		Str("action", string(tr.Action)).
		Str("reason", string(tr.Reason)).
		Float64("price", tr.Price).
		Float64("close", bar.Close).
		Float64("adx", e.snap.ADX).
		Float64("plus_di", e.snap.PlusDI).
		Float64("minus_di", e.snap.MinusDI).
		Float64("k", e.snap.StochK).
		Float64("d", e.snap.StochD).
		Msg("bar decision")
	return d
}

// OnTick runs the protective exits for an intrabar trade price. It never
// opens a position. Ticks older than the last closed bar are ignored.
func (e *Engine) OnTick(t model.Tick) *model.OrderIntent {
	d := e.onTick(t)
	if d == nil {
		return nil
	}
	return &d.Intent
}

func (e *Engine) onTick(t model.Tick) *model.Decision {
	if e.prom != nil {
		e.prom.TicksTotal.Inc()
	}
	if !e.pos.IsOpen() {
		return nil
	}
	if e.symbol != "" && t.Symbol != "" && t.Symbol != e.symbol {
		return nil
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return nil
	}
	if !t.TS.IsZero() && t.TS.Before(e.lastEnd) {
		return nil
	}

	before := e.pos
	next, ex := e.pos.checkTick(t.Price)
	e.pos = next
	if ex == nil {
		return nil
	}

	e.blockEntry = true
	if e.prom != nil {
		e.prom.PositionSide.Set(metrics.SideValue(e.pos.Side()))
	}

	traceID := logger.GenerateTraceID(e.symbol, t.TS)
	tr := &Transition{Action: before.closeAction(), Reason: ex.reason, Price: ex.price}
	d := e.record(before, tr, e.lastBar, traceID)
	e.log.Info().
		Str("trace_id", traceID).
		Str("action", string(tr.Action)).
		Str("reason", string(tr.Reason)).
		Float64("price", tr.Price).
		Msg("tick exit")
	return d
}

// record builds the decision for a transition out of before.
func (e *Engine) record(before Position, tr *Transition, barTime time.Time, traceID string) *model.Decision {
	intent := model.OrderIntent{
		ID:             e.newID(),
		Symbol:         e.symbol,
		Action:         tr.Action,
		ReferencePrice: tr.Price,
		Reason:         tr.Reason,
		BarTime:        barTime,
		CreatedAt:      e.now().UTC(),
	}
	if e.prom != nil {
		e.prom.IntentsTotal.WithLabelValues(string(tr.Action), string(tr.Reason)).Inc()
	}

	d := &model.Decision{
		TraceID: traceID,
		Intent:  intent,
		Before:  before.View(e.symbol),
		After:   e.pos.View(e.symbol),
	}
	if e.snap.Valid() {
		s := e.snap
		d.Indicators = &s
	}
	return d
}

// Run consumes the ordered event queue until ctx is cancelled or events is
// closed. Each event is processed fully before the next one is read.
func (e *Engine) Run(ctx context.Context, events <-chan model.Event, out Outputs) error {
	e.log.Info().
		Int("window", e.cfg.WindowSize).
		Int("warmup_bars", e.cfg.WarmupBars()).
		Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handle(ev, out)
		}
	}
}

func (e *Engine) handle(ev model.Event, out Outputs) {
	var d *model.Decision

	switch ev.Kind {
	case model.EventBar:
		var err error
		d, err = e.onBar(ev.Bar)
		if err != nil {
			e.log.Warn().Err(err).Time("open_time", ev.Bar.OpenTime).Msg("bar rejected")
			return
		}
		if out.Bars != nil {
			select {
			case out.Bars <- ev.Bar:
			default:
				e.drop("bars")
			}
		}
	case model.EventTick:
		d = e.onTick(ev.Tick)
	default:
		e.log.Warn().Str("kind", ev.Kind.String()).Msg("unknown event")
		return
	}

	if d == nil || out.Decisions == nil {
		return
	}
	select {
	case out.Decisions <- *d:
	default:
		// The position has already moved; downstream execution will not see it.
		if e.prom != nil {
			e.prom.SinkErrors.WithLabelValues("decisions").Inc()
		}
		e.log.Error().
			Str("intent_id", d.Intent.ID).
			Str("action", string(d.Intent.Action)).
			Str("reason", string(d.Intent.Reason)).
			Float64("price", d.Intent.ReferencePrice).
			Str("trace_id", d.TraceID).
			Msg("decision channel full, intent dropped")
	}
}

func (e *Engine) drop(sink string) {
	if e.prom != nil {
		e.prom.SinkErrors.WithLabelValues(sink).Inc()
	}
	e.log.Warn().Str("sink", sink).Msg("output channel full, dropping")
}

func nanSnapshot() model.IndicatorSnapshot {
	nan := math.NaN()
	return model.IndicatorSnapshot{ADX: nan, PlusDI: nan, MinusDI: nan, StochK: nan, StochD: nan, EMALong: nan, EMAShort: nan}
}
