package strategy

import (
	"testing"

	"trendbot/internal/model"
)

var (
	upEntry   = SignalSet{TrendUpStrong: true, WeakeningForShort: true, AboveEMA: true, AboveShortEMA: true, StochRising: true}
	downEntry = SignalSet{TrendDownStrong: true, WeakeningForLong: true, BelowEMA: true, BelowShortEMA: true, StochFalling: true}
)

func TestStep(t *testing.T) {
	cfg := DefaultConfig()
	calm := ohlc(100, 100.5, 99.5, 100)

	tests := []struct {
		name       string
		pos        Position
		sig        SignalSet
		allowEntry bool
		wantSide   model.Side
		wantAction model.Action // "" means no transition
	}{
		{"flat opens long", Flat(), upEntry, true, model.SideLong, model.ActionOpenLong},
		{"flat opens short", Flat(), downEntry, true, model.SideShort, model.ActionOpenShort},
		{"entry blocked", Flat(), upEntry, false, model.SideFlat, ""},
		{"flat needs rising stoch", Flat(), SignalSet{TrendUpStrong: true, AboveEMA: true, AboveShortEMA: true}, true, model.SideFlat, ""},
		{"flat needs short ema", Flat(), SignalSet{TrendUpStrong: true, AboveEMA: true, StochRising: true}, true, model.SideFlat, ""},
		{"no signal holds flat", Flat(), SignalSet{}, true, model.SideFlat, ""},
		{"short closes on up-trend above ema", Open(model.SideShort, 100, cfg), upEntry, true, model.SideFlat, model.ActionCloseShort},
		{"short held on up-trend below ema", Open(model.SideShort, 100, cfg), SignalSet{TrendUpStrong: true, WeakeningForShort: true, BelowEMA: true}, true, model.SideShort, ""},
		{"long closes on down-trend below ema", Open(model.SideLong, 100, cfg), downEntry, true, model.SideFlat, model.ActionCloseLong},
		{"long held on down-trend above ema", Open(model.SideLong, 100, cfg), SignalSet{TrendDownStrong: true, WeakeningForLong: true, AboveEMA: true}, true, model.SideLong, ""},
		{"long closes on weakening", Open(model.SideLong, 100, cfg), SignalSet{WeakeningForLong: true, AboveEMA: true}, true, model.SideFlat, model.ActionCloseLong},
		{"long closes below ema", Open(model.SideLong, 100, cfg), SignalSet{BelowEMA: true}, true, model.SideFlat, model.ActionCloseLong},
		{"long holds in up-trend", Open(model.SideLong, 100, cfg), upEntry, true, model.SideLong, ""},
		{"short closes on weakening", Open(model.SideShort, 100, cfg), SignalSet{WeakeningForShort: true, BelowEMA: true}, true, model.SideFlat, model.ActionCloseShort},
		{"short holds without signal", Open(model.SideShort, 100, cfg), SignalSet{}, true, model.SideShort, ""},
	}

	for _, test := range tests {
		next, tr := Step(test.pos, calm, test.sig, cfg, test.allowEntry)
		if next.Side() != test.wantSide {
			t.Errorf("%s: side %s, want %s", test.name, next.Side(), test.wantSide)
		}
		switch {
		case test.wantAction == "" && tr != nil:
			t.Errorf("%s: unexpected transition %+v", test.name, tr)
		case test.wantAction != "" && tr == nil:
			t.Errorf("%s: expected %s, got none", test.name, test.wantAction)
		case tr != nil && tr.Action != test.wantAction:
			t.Errorf("%s: action %s, want %s", test.name, tr.Action, test.wantAction)
		case tr != nil && tr.Reason != model.ReasonSignal:
			t.Errorf("%s: reason %s, want SIGNAL", test.name, tr.Reason)
		}
	}
}

func TestStep_FlipTakesTwoBars(t *testing.T) {
	cfg := DefaultConfig()
	bar := ohlc(100, 100.5, 99.5, 100)

	pos := Open(model.SideShort, 100, cfg)
	pos, tr := Step(pos, bar, upEntry, cfg, true)
	if tr == nil || tr.Action != model.ActionCloseShort || pos.IsOpen() {
		t.Fatalf("reversal bar should only close the short, got %+v side=%s", tr, pos.Side())
	}

	pos, tr = Step(pos, bar, upEntry, cfg, true)
	if tr == nil || tr.Action != model.ActionOpenLong || pos.Side() != model.SideLong {
		t.Fatalf("next bar should open long, got %+v side=%s", tr, pos.Side())
	}
}

func TestStep_ProtectiveExitBeforeSignals(t *testing.T) {
	cfg := DefaultConfig()
	pos := Open(model.SideLong, 100, cfg)

	// Signals say hold, but the bar breaches the stop
	next, tr := Step(pos, ohlc(99, 99.5, 96, 99), upEntry, cfg, true)
	if tr == nil || tr.Reason != model.ReasonStopLoss {
		t.Fatalf("expected STOP_LOSS, got %+v", tr)
	}
	if tr.Action != model.ActionCloseLong || next.IsOpen() {
		t.Fatalf("expected flat after CLOSE_LONG, got %s %s", tr.Action, next.Side())
	}
}

func TestStep_EntryUsesClose(t *testing.T) {
	cfg := DefaultConfig()
	next, tr := Step(Flat(), ohlc(100, 106, 99, 105), upEntry, cfg, true)
	if tr == nil {
		t.Fatal("expected entry")
	}
	assertFloat(t, "reference price", tr.Price, 105)
	assertFloat(t, "entry", next.Levels().Entry, 105)
	assertFloat(t, "extreme resets to entry", next.Levels().Extreme, 105)
}
