package model

import (
	"encoding/json"
	"math"
	"time"
)

// Action is the order action requested by the engine.
type Action string

const (
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
)

// Opens reports whether the action opens a position.
func (a Action) Opens() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// Side returns the position side the action operates on.
func (a Action) Side() Side {
	switch a {
	case ActionOpenLong, ActionCloseLong:
		return SideLong
	case ActionOpenShort, ActionCloseShort:
		return SideShort
	}
	return SideFlat
}

// Reason explains why an intent was emitted.
type Reason string

const (
	ReasonSignal       Reason = "SIGNAL"
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonTakeProfit   Reason = "TAKE_PROFIT"
	ReasonTrailingStop Reason = "TRAILING_STOP"
)

// Side is the net position direction.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderIntent is the only output of the engine. The execution layer owns sizing,
// placement, retries and fill confirmation.
type OrderIntent struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Action         Action    `json:"action"`
	ReferencePrice float64   `json:"reference_price"`
	Reason         Reason    `json:"reason"`
	BarTime        time.Time `json:"bar_time"` // open time of the bar that produced the intent
	CreatedAt      time.Time `json:"created_at"`
}

// IndicatorSnapshot holds the latest indicator values computed over the window.
type IndicatorSnapshot struct {
	ADX      float64 `json:"adx"`
	PlusDI   float64 `json:"plus_di"`
	MinusDI  float64 `json:"minus_di"`
	StochK   float64 `json:"stoch_k"`
	StochD   float64 `json:"stoch_d"`
	EMALong  float64 `json:"ema_long"`
	EMAShort float64 `json:"ema_short"`
}

// Valid reports whether every value is finite.
func (s IndicatorSnapshot) Valid() bool {
	for _, v := range [...]float64{s.ADX, s.PlusDI, s.MinusDI, s.StochK, s.StochD, s.EMALong, s.EMAShort} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Levels are the protective price levels of an open position.
type Levels struct {
	Entry              float64  `json:"entry"`
	StopLoss           float64  `json:"stop_loss"`
	TakeProfit         float64  `json:"take_profit"`
	TrailingActivation float64  `json:"trailing_activation"`
	TrailingStop       *float64 `json:"trailing_stop,omitempty"` // nil until armed
	Extreme            float64  `json:"extreme"`                 // best price since entry
}

// PositionView is a read-only copy of the engine position for collaborators.
type PositionView struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Levels *Levels `json:"levels,omitempty"` // nil while flat
}

// JSON returns the JSON-encoded view (ignoring errors for hot-path usage).
func (p *PositionView) JSON() []byte {
	out, _ := json.Marshal(p)
	return out
}

// Decision is the event handed to persistence and notification collaborators
// each time the engine emits an intent.
type Decision struct {
	TraceID    string             `json:"trace_id"`
	Intent     OrderIntent        `json:"intent"`
	Before     PositionView       `json:"before"` // position before the transition
	After      PositionView       `json:"after"`
	Indicators *IndicatorSnapshot `json:"indicators,omitempty"` // nil when not all values are finite
}

// StreamKey returns the Redis stream key for decisions of a symbol.
func (d *Decision) StreamKey() string {
	return "decision:" + d.Intent.Symbol
}

// JSON returns the JSON-encoded decision (ignoring errors for hot-path usage).
func (d *Decision) JSON() []byte {
	out, _ := json.Marshal(d)
	return out
}
