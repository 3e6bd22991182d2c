package window

import (
	"testing"
	"time"

	"trendbot/internal/model"
)

func bar(i int) model.Bar {
	return model.Bar{
		Symbol:   "BTCUSDT",
		OpenTime: time.Unix(int64(i)*3600, 0).UTC(),
		Close:    float64(100 + i),
	}
}

func TestWindow_BasicPush(t *testing.T) {
	w := New(4)

	if _, ok := w.Last(); ok {
		t.Fatal("Last on empty window should return false")
	}

	w.Push(bar(1))
	w.Push(bar(2))

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}
	last, ok := w.Last()
	if !ok || last.Close != 102 {
		t.Fatalf("expected last close 102, got %v ok=%v", last.Close, ok)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(3)
	for i := 1; i <= 5; i++ {
		w.Push(bar(i))
	}

	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	if w.Evicted() != 2 {
		t.Fatalf("expected evicted=2, got %d", w.Evicted())
	}

	got := w.Slice()
	for i, want := range []float64{103, 104, 105} {
		if got[i].Close != want {
			t.Fatalf("slice[%d]: expected close %v, got %v", i, want, got[i].Close)
		}
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(4)

	// Push many rounds and check ordering every time
	for n := 1; n <= 50; n++ {
		w.Push(bar(n))
		s := w.Slice()
		first := n - len(s) + 1
		for i, b := range s {
			if b.Close != float64(100+first+i) {
				t.Fatalf("after %d pushes slice[%d]=%v, want %v", n, i, b.Close, float64(100+first+i))
			}
		}
	}
}

func TestWindow_SliceIsCopy(t *testing.T) {
	w := New(2)
	w.Push(bar(1))

	s := w.Slice()
	s[0].Close = -1

	last, _ := w.Last()
	if last.Close != 101 {
		t.Fatalf("window mutated through slice: %v", last.Close)
	}
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := New(0)
	if w.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", w.Cap())
	}
	w.Push(bar(1))
	w.Push(bar(2))
	if last, _ := w.Last(); last.Close != 102 || w.Len() != 1 {
		t.Fatalf("unexpected state len=%d last=%v", w.Len(), last.Close)
	}
}

func TestWindow_Reset(t *testing.T) {
	w := New(2)
	w.Push(bar(1))
	w.Push(bar(2))
	w.Push(bar(3))
	w.Reset()

	if w.Len() != 0 {
		t.Fatalf("expected empty window, got len=%d", w.Len())
	}
	if w.Evicted() != 1 {
		t.Fatalf("eviction counter should survive reset, got %d", w.Evicted())
	}
}
