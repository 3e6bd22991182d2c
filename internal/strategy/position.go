package strategy

import "trendbot/internal/model"

// Position is the state of the single net position of one symbol. It is a
// plain value: every step takes a Position and returns the next one, so no
// level survives a transition by accident. The zero value is Flat.
type Position struct {
	side model.Side
	lv   levels // meaningful only while open
}

// levels are the protective prices of an open position.
type levels struct {
	entry      float64
	stopLoss   float64
	takeProfit float64
	activation float64
	execPct    float64

	extreme      float64 // highest high (Long) or lowest low (Short) since entry
	armed        bool
	trailingStop float64 // valid only when armed
}

// Flat returns the flat position.
func Flat() Position { return Position{} }

// Open returns a fresh position on side filled at entry, with levels derived
// from cfg.
func Open(side model.Side, entry float64, cfg Config) Position {
	return Position{side: side, lv: newLevels(side, entry, cfg)}
}

// Side returns FLAT, LONG or SHORT.
func (p Position) Side() model.Side {
	if p.side == "" {
		return model.SideFlat
	}
	return p.side
}

// IsOpen reports whether a position is held.
func (p Position) IsOpen() bool {
	return p.side == model.SideLong || p.side == model.SideShort
}

// Levels returns a copy of the protective levels, nil while flat.
func (p Position) Levels() *model.Levels {
	if !p.IsOpen() {
		return nil
	}
	out := &model.Levels{
		Entry:              p.lv.entry,
		StopLoss:           p.lv.stopLoss,
		TakeProfit:         p.lv.takeProfit,
		TrailingActivation: p.lv.activation,
		Extreme:            p.lv.extreme,
	}
	if p.lv.armed {
		ts := p.lv.trailingStop
		out.TrailingStop = &ts
	}
	return out
}

// View returns the collaborator-facing copy of the position.
func (p Position) View(symbol string) model.PositionView {
	return model.PositionView{Symbol: symbol, Side: p.Side(), Levels: p.Levels()}
}

// closeAction returns the action that closes the position.
func (p Position) closeAction() model.Action {
	if p.side == model.SideShort {
		return model.ActionCloseShort
	}
	return model.ActionCloseLong
}
