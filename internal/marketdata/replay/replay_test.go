package replay

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// memReader serves bars from memory with the BarReader paging contract.
type memReader struct {
	bars  []model.Bar
	calls int
}

func (m *memReader) ReadBars(symbol, interval string, after time.Time, limit int) ([]model.Bar, error) {
	m.calls++
	var out []model.Bar
	for _, b := range m.bars {
		if b.Symbol != symbol || b.Interval != interval || !b.OpenTime.After(after) {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memReader) Close() error { return nil }

func hourly(n int) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		open := start.Add(time.Duration(i) * time.Hour)
		bars[i] = model.Bar{
			Symbol: "BTCUSDT", Interval: "1h",
			OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
			Open: 100, High: 101, Low: 99, Close: 100,
		}
	}
	return bars
}

func TestReplayer_PagesInOrder(t *testing.T) {
	reader := &memReader{bars: hourly(25)}
	r := New(reader, zerolog.Nop())
	r.PageSize = 10

	out := make(chan model.Event, 100)
	n, err := r.Run(context.Background(), "BTCUSDT", "1h", time.Time{}, 0, out)
	assert.NoError(t, err)
	assert.Equal(t, n, 25)
	assert.Equal(t, reader.calls, 3)
	close(out)

	var prev time.Time
	for ev := range out {
		assert.Equal(t, ev.Kind, model.EventBar)
		assert.True(t, ev.Bar.Closed)
		assert.True(t, ev.Bar.OpenTime.After(prev))
		prev = ev.Bar.OpenTime
	}
}

func TestReplayer_After(t *testing.T) {
	bars := hourly(5)
	r := New(&memReader{bars: bars}, zerolog.Nop())

	out := make(chan model.Event, 10)
	n, err := r.Run(context.Background(), "BTCUSDT", "1h", bars[2].OpenTime, 0, out)
	assert.NoError(t, err)
	assert.Equal(t, n, 2)
}

func TestReplayer_Empty(t *testing.T) {
	r := New(&memReader{}, zerolog.Nop())
	n, err := r.Run(context.Background(), "BTCUSDT", "1h", time.Time{}, 0, make(chan model.Event))
	assert.NoError(t, err)
	assert.Equal(t, n, 0)
}

func TestReplayer_Cancel(t *testing.T) {
	r := New(&memReader{bars: hourly(3)}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read: the only way out is ctx.
	n, err := r.Run(ctx, "BTCUSDT", "1h", time.Time{}, 0, make(chan model.Event))
	assert.Error(t, err)
	assert.Equal(t, n, 0)
}
