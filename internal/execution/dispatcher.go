// Package execution turns engine intents into fills.
//
// The Dispatcher consumes decisions downstream of the engine, asks a Placer
// to fill each intent (retrying transient failures), journals the fill,
// and pairs entries with exits in a PnL tracker. It never feeds anything
// back into the engine.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"trendbot/internal/metrics"
	"trendbot/internal/model"
	"trendbot/internal/portfolio"
)

// ErrRejected marks a placement failure that must not be retried.
var ErrRejected = errors.New("order rejected")

// Placer places one order for an intent and reports its fill.
type Placer interface {
	Place(ctx context.Context, intent model.OrderIntent) (model.Fill, error)
}

// FillJournal persists fills and closed round trips.
type FillJournal interface {
	RecordFill(ctx context.Context, f model.Fill) error
	RecordRoundTrip(ctx context.Context, rt portfolio.RoundTrip) error
}

// Result is the outcome of dispatching one intent.
type Result struct {
	Intent    model.OrderIntent
	Fill      *model.Fill
	RoundTrip *portfolio.RoundTrip
	Attempts  int
	Err       error
}

// Options configures a Dispatcher. Placer is required.
type Options struct {
	Placer  Placer
	Journal FillJournal           // optional
	Tracker *portfolio.PnLTracker // optional
	Metrics *metrics.Metrics      // optional
	Logger  zerolog.Logger

	MaxAttempts  int           // default 3
	Backoff      time.Duration // initial retry delay, doubled per attempt; default 200ms
	ResultBuffer int           // default 64
}

// Dispatcher executes intents sequentially.
type Dispatcher struct {
	placer  Placer
	journal FillJournal
	tracker *portfolio.PnLTracker
	metrics *metrics.Metrics
	log     zerolog.Logger

	maxAttempts int
	backoff     time.Duration
	results     chan Result
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 64
	}
	return &Dispatcher{
		placer:      opts.Placer,
		journal:     opts.Journal,
		tracker:     opts.Tracker,
		metrics:     opts.Metrics,
		log:         opts.Logger.With().Str("component", "execution").Logger(),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		results:     make(chan Result, opts.ResultBuffer),
	}
}

// Results returns the channel of dispatch results. Results are dropped when
// nobody reads it.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Run consumes decisions until ctx is cancelled or ch is closed.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan model.Decision) {
	for {
		select {
		case <-ctx.Done():
			return
		case dec, ok := <-ch:
			if !ok {
				return
			}
			res := d.Execute(ctx, dec.Intent)
			select {
			case d.results <- res:
			default:
			}
		}
	}
}

// Execute places a single intent and books its fill.
func (d *Dispatcher) Execute(ctx context.Context, intent model.OrderIntent) Result {
	log := d.log.With().Str("intent_id", intent.ID).Str("action", string(intent.Action)).Logger()
	res := Result{Intent: intent}

	fill, attempts, err := d.place(ctx, intent)
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		d.count("error")
		log.Error().Err(err).Int("attempts", attempts).Msg("order placement failed")
		return res
	}
	res.Fill = &fill
	d.count("filled")
	log.Info().
		Str("order_id", fill.OrderID).
		Str("price", fill.Price.String()).
		Str("qty", fill.Qty.String()).
		Str("reason", string(fill.Reason)).
		Msg("order filled")

	if d.journal != nil {
		if err := d.journal.RecordFill(ctx, fill); err != nil {
			d.sinkError("journal")
			log.Error().Err(err).Msg("journal fill failed")
		}
	}

	if d.tracker == nil {
		return res
	}
	rt, err := d.tracker.RecordFill(fill)
	if err != nil {
		entry, _ := d.tracker.OpenEntry(fill.Symbol)
		log.Error().Err(err).Str("fill", spew.Sdump(fill)).Str("open_entry", spew.Sdump(entry)).Msg("fill does not match tracked position")
		return res
	}
	if rt != nil {
		res.RoundTrip = rt
		log.Info().Str("pnl", rt.PnL.StringFixed(4)).Str("pnl_pct", rt.PnLPct.StringFixed(2)).Msg("round trip closed")
		if d.journal != nil {
			if err := d.journal.RecordRoundTrip(ctx, *rt); err != nil {
				d.sinkError("journal")
				log.Error().Err(err).Msg("journal round trip failed")
			}
		}
	}
	return res
}

// place calls the placer with exponential backoff between attempts.
func (d *Dispatcher) place(ctx context.Context, intent model.OrderIntent) (model.Fill, int, error) {
	delay := d.backoff
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		fill, err := d.placer.Place(ctx, intent)
		if err == nil {
			return fill, attempt, nil
		}
		lastErr = err
		if errors.Is(err, ErrRejected) || ctx.Err() != nil || attempt == d.maxAttempts {
			return model.Fill{}, attempt, lastErr
		}

		d.count("retry")
		d.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("order placement failed, retrying")
		select {
		case <-ctx.Done():
			return model.Fill{}, attempt, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return model.Fill{}, d.maxAttempts, lastErr
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.OrdersTotal.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) sinkError(sink string) {
	if d.metrics != nil {
		d.metrics.SinkErrors.WithLabelValues(sink).Inc()
	}
}
