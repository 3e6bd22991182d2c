package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Bar](10, zerolog.Nop())
	out1 := fo.Subscribe("sqlite")
	out2 := fo.Subscribe("redis")

	input := make(chan model.Bar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Bar{Symbol: "BTCUSDT", Open: 100, High: 110, Low: 90, Close: 105}

	for name, out := range map[string]<-chan model.Bar{"out1": out1, "out2": out2} {
		select {
		case b := <-out:
			if b.Symbol != "BTCUSDT" {
				t.Errorf("%s: expected BTCUSDT, got %s", name, b.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for bar", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[int](1, zerolog.Nop())
	fast := fo.Subscribe("fast")
	fo.Subscribe("slow") // never drained

	var mu sync.Mutex
	drops := map[string]int{}
	fo.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		input <- i
		if got := <-fast; got != i {
			t.Fatalf("fast: expected %d, got %d", i, got)
		}
	}
	close(input)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if drops["slow"] != 2 {
		t.Errorf("expected 2 drops for slow, got %d", drops["slow"])
	}
	if drops["fast"] != 0 {
		t.Errorf("expected no drops for fast, got %d", drops["fast"])
	}
}

func TestFanOut_ClosesOutputsOnExit(t *testing.T) {
	fo := New[model.Decision](4, zerolog.Nop())
	out := fo.Subscribe("notify")

	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, make(chan model.Decision))
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}

	stats := fo.ChannelStats()
	if len(stats) != 1 || stats[0].Name != "notify" || stats[0].Cap != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
