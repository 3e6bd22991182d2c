package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"trendbot/internal/metrics"
	"trendbot/internal/model"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, close float64) model.Bar {
	open := start.Add(time.Duration(i) * time.Hour)
	return model.Bar{
		Symbol: "BTCUSDT", Interval: "1h",
		OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
		Open: close - 1, High: close + 2, Low: close - 2, Close: close, Volume: 10.5,
		Closed: true,
	}
}

func openStore(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := New(WriterConfig{DBPath: path, Logger: zerolog.Nop(), Metrics: metrics.NewMetricsWith(prometheus.NewRegistry())})
	assert.NoError(t, err)
	r, err := NewReader(path)
	assert.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return w, r
}

func TestRunBars_RoundTrip(t *testing.T) {
	w, r := openStore(t)

	ch := make(chan model.Bar, 10)
	want := []model.Bar{bar(0, 100), bar(1, 101), bar(2, 102)}
	for _, b := range want {
		ch <- b
	}
	close(ch)
	w.RunBars(context.Background(), ch)

	got, err := r.ReadBars("BTCUSDT", "1h", time.Time{}, 0)
	assert.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bars mismatch (-want +got):\n%s", diff)
	}

	last, err := r.LastBarTime("BTCUSDT", "1h")
	assert.NoError(t, err)
	assert.True(t, last.Equal(want[2].OpenTime))
}

func TestReadBars_AfterAndLimit(t *testing.T) {
	w, r := openStore(t)
	var bars []model.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(i, 100+float64(i)))
	}
	assert.NoError(t, w.InsertBars(bars))

	got, err := r.ReadBars("BTCUSDT", "1h", bars[3].OpenTime, 4)
	assert.NoError(t, err)
	assert.Equal(t, len(got), 4)
	assert.Equal(t, got[0].Close, 104.0)
	assert.Equal(t, got[3].Close, 107.0)

	other, err := r.ReadBars("ETHUSDT", "1h", time.Time{}, 0)
	assert.NoError(t, err)
	assert.Equal(t, len(other), 0)

	latest, err := r.LatestBars("BTCUSDT", "1h", 3)
	assert.NoError(t, err)
	assert.Equal(t, len(latest), 3)
	assert.Equal(t, latest[0].Close, 107.0)
	assert.Equal(t, latest[2].Close, 109.0)
}

func TestInsertBars_Upsert(t *testing.T) {
	w, r := openStore(t)
	assert.NoError(t, w.InsertBars([]model.Bar{bar(0, 100)}))
	assert.NoError(t, w.InsertBars([]model.Bar{bar(0, 105)}))

	got, err := r.ReadBars("BTCUSDT", "1h", time.Time{}, 0)
	assert.NoError(t, err)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Close, 105.0)
}

func TestLastBarTime_Empty(t *testing.T) {
	w, r := openStore(t)
	last, err := w.LastBarTime("BTCUSDT", "1h")
	assert.NoError(t, err)
	assert.True(t, last.IsZero())

	latest, err := r.LatestBars("BTCUSDT", "1h", 5)
	assert.NoError(t, err)
	assert.Equal(t, len(latest), 0)
}

func TestRunDecisions(t *testing.T) {
	w, r := openStore(t)

	d := model.Decision{
		TraceID: "BTCUSDT-1",
		Intent: model.OrderIntent{
			ID: "a", Symbol: "BTCUSDT", Action: model.ActionOpenLong, ReferencePrice: 100,
			Reason: model.ReasonSignal, BarTime: start, CreatedAt: start.Add(time.Hour),
		},
	}
	ch := make(chan model.Decision, 3)
	ch <- d
	ch <- d // duplicate intent id
	d2 := d
	d2.Intent.ID = "b"
	d2.Intent.Action = model.ActionCloseLong
	ch <- d2
	close(ch)

	w.RunDecisions(context.Background(), ch)

	n, err := r.CountDecisions("BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, n, 2)
}
