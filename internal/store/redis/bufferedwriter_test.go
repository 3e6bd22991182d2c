package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// fakeWriter records writes and fails while down is set.
type fakeWriter struct {
	mu        sync.Mutex
	down      bool
	bars      []model.Bar
	decisions []model.Decision
}

func (f *fakeWriter) WriteBar(ctx context.Context, b model.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.bars = append(f.bars, b)
	return nil
}

func (f *fakeWriter) WriteDecision(ctx context.Context, d model.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeWriter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bars), len(f.decisions)
}

func testBar(i int) model.Bar {
	return model.Bar{Symbol: "BTCUSDT", Interval: "1h", OpenTime: time.Unix(int64(i)*3600, 0).UTC(), Close: float64(100 + i)}
}

func TestBufferedWriter_PassThrough(t *testing.T) {
	fw := &fakeWriter{}
	cb, _ := newTestBreaker(2, time.Second)
	bw := NewBufferedWriter(context.Background(), fw, cb, 0, zerolog.Nop())

	bw.WriteBar(testBar(0))
	bw.WriteDecision(model.Decision{Intent: model.OrderIntent{Symbol: "BTCUSDT"}})

	bars, decisions := fw.counts()
	if bars != 1 || decisions != 1 {
		t.Fatalf("expected 1/1 writes, got %d/%d", bars, decisions)
	}
	if bw.PendingCount() != 0 {
		t.Errorf("expected empty buffer, got %d", bw.PendingCount())
	}
}

func TestBufferedWriter_BuffersAndFlushesInOrder(t *testing.T) {
	fw := &fakeWriter{down: true}
	cb, advance := newTestBreaker(2, time.Second)
	bw := NewBufferedWriter(context.Background(), fw, cb, 0, zerolog.Nop())

	flushed := make(chan int, 1)
	bw.OnFlush = func(n int) { flushed <- n }
	buffered := 0
	bw.OnBuffer = func() { buffered++ }

	// Two failures trip the breaker, the third is rejected while open
	for i := 0; i < 3; i++ {
		bw.WriteBar(testBar(i))
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", cb.CurrentState())
	}
	if bw.PendingCount() != 3 || buffered != 3 {
		t.Fatalf("expected 3 buffered, got %d (callbacks %d)", bw.PendingCount(), buffered)
	}

	fw.setDown(false)
	advance(2 * time.Second)
	bw.WriteBar(testBar(3)) // probe succeeds, circuit closes, flush starts

	select {
	case n := <-flushed:
		if n != 3 {
			t.Errorf("expected 3 flushed, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flush not triggered")
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.bars) != 4 {
		t.Fatalf("expected 4 bars written, got %d", len(fw.bars))
	}
	// The probe lands first, then the backlog in arrival order
	for i, want := range []float64{103, 100, 101, 102} {
		if fw.bars[i].Close != want {
			t.Errorf("bar %d: expected close %v, got %v", i, want, fw.bars[i].Close)
		}
	}
}

func TestBufferedWriter_RecoversFromTransientFailure(t *testing.T) {
	fw := &fakeWriter{down: true}
	cb, _ := newTestBreaker(5, 10*time.Millisecond)
	bw := NewBufferedWriter(context.Background(), fw, cb, 0, zerolog.Nop())

	// One failure stays below the trip threshold
	bw.WriteBar(testBar(0))
	if cb.CurrentState() != StateClosed || bw.PendingCount() != 1 {
		t.Fatalf("expected closed breaker with 1 pending, got %v/%d", cb.CurrentState(), bw.PendingCount())
	}

	fw.setDown(false)
	for i := 1; i < 50; i++ {
		bw.WriteBar(testBar(i))
	}

	if bw.PendingCount() != 0 {
		t.Fatalf("expected empty buffer, got %d", bw.PendingCount())
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.bars) != 50 {
		t.Fatalf("expected 50 bars written, got %d", len(fw.bars))
	}
	// The held bar goes out right after the first successful write
	for i, want := range []float64{101, 100, 102} {
		if fw.bars[i].Close != want {
			t.Errorf("bar %d: expected close %v, got %v", i, want, fw.bars[i].Close)
		}
	}
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	fw := &fakeWriter{down: true}
	cb, _ := newTestBreaker(1, time.Hour)
	bw := NewBufferedWriter(context.Background(), fw, cb, 2, zerolog.Nop())

	for i := 0; i < 5; i++ {
		bw.WriteBar(testBar(i))
	}
	if bw.PendingCount() != 2 {
		t.Fatalf("expected 2 pending, got %d", bw.PendingCount())
	}
	bw.mu.Lock()
	first := bw.buffer[0].bar.Close
	bw.mu.Unlock()
	if first != 103 {
		t.Errorf("expected oldest kept bar close 103, got %v", first)
	}
}

func TestBufferedWriter_RunDecisions(t *testing.T) {
	fw := &fakeWriter{}
	cb, _ := newTestBreaker(2, time.Second)
	bw := NewBufferedWriter(context.Background(), fw, cb, 0, zerolog.Nop())

	ch := make(chan model.Decision, 3)
	for i := 0; i < 3; i++ {
		ch <- model.Decision{TraceID: "t"}
	}
	close(ch)
	bw.RunDecisions(context.Background(), ch)

	if _, n := fw.counts(); n != 3 {
		t.Errorf("expected 3 decisions, got %d", n)
	}
}
