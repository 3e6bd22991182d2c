package model

import "time"

// Tick is a single trade print from the exchange trade stream.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
	TS     time.Time `json:"ts"` // trade time (UTC)
}

// EventKind distinguishes the two inputs of the engine queue.
type EventKind uint8

const (
	EventBar EventKind = iota + 1
	EventTick
)

func (k EventKind) String() string {
	switch k {
	case EventBar:
		return "bar"
	case EventTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Event is one entry of the single ordered queue feeding the engine.
// Exactly one of Bar or Tick is meaningful, selected by Kind.
type Event struct {
	Kind EventKind
	Bar  Bar
	Tick Tick
}

// BarEvent wraps a closed bar.
func BarEvent(b Bar) Event { return Event{Kind: EventBar, Bar: b} }

// TickEvent wraps a trade tick.
func TickEvent(t Tick) Event { return Event{Kind: EventTick, Tick: t} }
