package strategy

import (
	"math"

	"trendbot/internal/model"
)

// exit is a triggered protective exit.
type exit struct {
	reason model.Reason
	price  float64
}

func newLevels(side model.Side, entry float64, cfg Config) levels {
	lv := levels{
		entry:   entry,
		execPct: cfg.TrailingExecPct,
		extreme: entry,
	}
	if side == model.SideShort {
		lv.stopLoss = entry * (1 + cfg.StopLossPct)
		lv.takeProfit = entry * (1 - cfg.TakeProfitPct)
		lv.activation = entry * (1 - cfg.TrailingActivationPct)
	} else {
		lv.stopLoss = entry * (1 - cfg.StopLossPct)
		lv.takeProfit = entry * (1 + cfg.TakeProfitPct)
		lv.activation = entry * (1 + cfg.TrailingActivationPct)
	}
	return lv
}

// hit checks the stop-loss, take-profit and trailing levels in that order
// against the adverse and favorable prices of an evaluation. The level itself
// is returned as the reference price.
func (p Position) hit(adverse, favorable float64) *exit {
	lv := p.lv
	switch p.side {
	case model.SideLong:
		if adverse <= lv.stopLoss {
			return &exit{model.ReasonStopLoss, lv.stopLoss}
		}
		if favorable >= lv.takeProfit {
			return &exit{model.ReasonTakeProfit, lv.takeProfit}
		}
		if lv.armed && adverse <= lv.trailingStop {
			return &exit{model.ReasonTrailingStop, lv.trailingStop}
		}
	case model.SideShort:
		if adverse >= lv.stopLoss {
			return &exit{model.ReasonStopLoss, lv.stopLoss}
		}
		if favorable <= lv.takeProfit {
			return &exit{model.ReasonTakeProfit, lv.takeProfit}
		}
		if lv.armed && adverse >= lv.trailingStop {
			return &exit{model.ReasonTrailingStop, lv.trailingStop}
		}
	}
	return nil
}

// ratchet moves the favorable extreme with price, arms trailing once the
// activation level is reached and tightens the trailing stop. The trailing
// stop never loosens.
func (p Position) ratchet(favorable float64) Position {
	lv := &p.lv
	wasArmed := lv.armed
	switch p.side {
	case model.SideLong:
		lv.extreme = math.Max(lv.extreme, favorable)
		if favorable >= lv.activation {
			lv.armed = true
		}
		if lv.armed {
			ts := lv.extreme * (1 - lv.execPct)
			if !wasArmed || ts > lv.trailingStop {
				lv.trailingStop = ts
			}
		}
	case model.SideShort:
		lv.extreme = math.Min(lv.extreme, favorable)
		if favorable <= lv.activation {
			lv.armed = true
		}
		if lv.armed {
			ts := lv.extreme * (1 + lv.execPct)
			if !wasArmed || ts < lv.trailingStop {
				lv.trailingStop = ts
			}
		}
	}
	return p
}

// checkBar evaluates protective exits over a closed bar's range against the
// levels as they stood before the bar, then ratchets the trailing state with
// the bar's favorable extreme. On exit the returned position is Flat.
func (p Position) checkBar(bar model.Bar) (Position, *exit) {
	if !p.IsOpen() {
		return p, nil
	}
	adverse, favorable := bar.Low, bar.High
	if p.side == model.SideShort {
		adverse, favorable = bar.High, bar.Low
	}
	if ex := p.hit(adverse, favorable); ex != nil {
		ex.price = p.gapFill(ex, bar.Open)
		return Flat(), ex
	}
	return p.ratchet(favorable), nil
}

// gapFill returns the bar open instead of the triggered level when the bar
// opened beyond it: the level was never traded, the open was.
func (p Position) gapFill(ex *exit, open float64) float64 {
	// Long stops and short take profits trigger from above.
	fromAbove := (p.side == model.SideLong) != (ex.reason == model.ReasonTakeProfit)
	if (fromAbove && open < ex.price) || (!fromAbove && open > ex.price) {
		return open
	}
	return ex.price
}
