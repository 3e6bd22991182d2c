package strategy

import "trendbot/internal/model"

// Transition is the single action produced by one state machine step.
type Transition struct {
	Action model.Action
	Reason model.Reason
	Price  float64
}

// Step advances pos over one closed bar and returns the next position and at
// most one transition. Rules are evaluated in fixed priority, first match wins:
//
//  1. open position: stop-loss, take-profit, trailing stop over the bar range
//  2. flat or short in a strong up-trend: a short closes above the EMA, otherwise
//     it is held; flat opens long on rising stochastics above both EMAs
//  3. flat or long in a strong down-trend: mirror of 2
//  4. long closes when the up-trend weakens or price drops below the EMA
//  5. short closes when the down-trend weakens or price rises above the EMA
//
// Protective exits fill at the triggered level, or at the bar open when the
// bar gapped past it. Signal actions use the bar close as reference price.
// When allowEntry is false no position is opened on this bar.
func Step(pos Position, bar model.Bar, sig SignalSet, cfg Config, allowEntry bool) (Position, *Transition) {
	if pos.IsOpen() {
		next, ex := pos.checkBar(bar)
		if ex != nil {
			return next, &Transition{Action: pos.closeAction(), Reason: ex.reason, Price: ex.price}
		}
		pos = next
	}

	price := bar.Close
	side := pos.Side()

	switch {
	case side != model.SideLong && sig.TrendUpStrong:
		if side == model.SideShort {
			if sig.AboveEMA {
				return Flat(), signal(model.ActionCloseShort, price)
			}
			return pos, nil
		}
		if allowEntry && sig.StochRising && sig.AboveEMA && sig.AboveShortEMA {
			return Open(model.SideLong, price, cfg), signal(model.ActionOpenLong, price)
		}

	case side != model.SideShort && sig.TrendDownStrong:
		if side == model.SideLong {
			if sig.BelowEMA {
				return Flat(), signal(model.ActionCloseLong, price)
			}
			return pos, nil
		}
		if allowEntry && sig.StochFalling && sig.BelowEMA && sig.BelowShortEMA {
			return Open(model.SideShort, price, cfg), signal(model.ActionOpenShort, price)
		}

	case side == model.SideLong && (sig.WeakeningForLong || sig.BelowEMA):
		return Flat(), signal(model.ActionCloseLong, price)

	case side == model.SideShort && (sig.WeakeningForShort || sig.AboveEMA):
		return Flat(), signal(model.ActionCloseShort, price)
	}

	return pos, nil
}

func signal(a model.Action, price float64) *Transition {
	return &Transition{Action: a, Reason: model.ReasonSignal, Price: price}
}
