package model

import (
	"encoding/json"
	"time"
)

// Bar is one OHLC bar of a fixed interval for a single symbol.
// Prices are quote-currency floats as delivered by the exchange.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`   // exchange interval string, e.g. "1h"
	OpenTime  time.Time `json:"open_time"`  // bucket start (UTC)
	CloseTime time.Time `json:"close_time"` // last millisecond of the bucket (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Closed    bool      `json:"closed"`
}

// Key returns "symbol:interval".
func (b *Bar) Key() string {
	return b.Symbol + ":" + b.Interval
}

// StreamKey returns the Redis stream key for this bar's series.
func (b *Bar) StreamKey() string {
	return "bar:" + b.Interval + ":" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
