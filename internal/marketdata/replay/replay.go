// Package replay re-emits stored bars as engine events for backtesting.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// maxGap caps the scaled pause between two bars.
const maxGap = 5 * time.Second

// Replayer reads historical bars from a BarReader and replays them
// at a configurable speed multiplier.
type Replayer struct {
	reader model.BarReader
	log    zerolog.Logger

	// PageSize bounds each ReadBars call; 0 reads everything at once.
	PageSize int
}

// New creates a Replayer backed by reader.
func New(reader model.BarReader, logger zerolog.Logger) *Replayer {
	return &Replayer{
		reader:   reader,
		log:      logger.With().Str("component", "replay").Logger(),
		PageSize: 5000,
	}
}

// Run replays every bar of symbol/interval after `after` into out, oldest
// first, and returns the number of bars emitted.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, symbol, interval string, after time.Time, speed float64, out chan<- model.Event) (int, error) {
	var prev time.Time
	emitted := 0
	cursor := after

	for {
		bars, err := r.reader.ReadBars(symbol, interval, cursor, r.PageSize)
		if err != nil {
			return emitted, err
		}
		if len(bars) == 0 {
			break
		}

		for _, b := range bars {
			if speed > 0 && !prev.IsZero() {
				if gap := b.OpenTime.Sub(prev); gap > 0 {
					scaled := time.Duration(float64(gap) / speed)
					if scaled > maxGap {
						scaled = maxGap
					}
					select {
					case <-ctx.Done():
						return emitted, ctx.Err()
					case <-time.After(scaled):
					}
				}
			}
			prev = b.OpenTime

			b.Closed = true
			select {
			case out <- model.BarEvent(b):
				emitted++
			case <-ctx.Done():
				r.log.Info().Int("emitted", emitted).Msg("replay cancelled")
				return emitted, ctx.Err()
			}
		}

		cursor = bars[len(bars)-1].OpenTime
		if r.PageSize <= 0 || len(bars) < r.PageSize {
			break
		}
	}

	if emitted == 0 {
		r.log.Warn().Str("symbol", symbol).Str("interval", interval).Msg("no bars found")
	} else {
		r.log.Info().Int("bars", emitted).Float64("speed", speed).Msg("replay completed")
	}
	return emitted, nil
}
