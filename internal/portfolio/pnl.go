// Package portfolio pairs entry and exit fills into round trips and keeps
// realized PnL statistics.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trendbot/internal/model"
)

var hundred = decimal.NewFromInt(100)

// RoundTrip is one closed position: an entry fill matched with its exit.
type RoundTrip struct {
	Symbol     string          `json:"symbol"`
	Side       model.Side      `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	Reason     model.Reason    `json:"reason"` // exit reason
	PnL        decimal.Decimal `json:"pnl"`     // quote currency
	PnLPct     decimal.Decimal `json:"pnl_pct"` // percent of entry notional
}

// Win reports whether the round trip made money.
func (r RoundTrip) Win() bool { return r.PnL.IsPositive() }

// PnLTracker tracks open entries and realized round trips per symbol.
type PnLTracker struct {
	mu     sync.RWMutex
	open   map[string]model.Fill // symbol -> entry fill
	trips  []RoundTrip
	totals decimal.Decimal
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		open:  make(map[string]model.Fill),
		trips: make([]RoundTrip, 0, 256),
	}
}

// RecordFill applies a fill. An opening fill requires the symbol to be flat;
// a closing fill must match the side of the open entry. The closed round trip
// is returned for closing fills.
func (p *PnLTracker) RecordFill(f model.Fill) (*RoundTrip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, isOpen := p.open[f.Symbol]
	if f.Action.Opens() {
		if isOpen {
			return nil, fmt.Errorf("%s: %s while %s is open", f.Symbol, f.Action, entry.Action)
		}
		p.open[f.Symbol] = f
		return nil, nil
	}

	if !isOpen {
		return nil, fmt.Errorf("%s: %s with no open entry", f.Symbol, f.Action)
	}
	if entry.Action.Side() != f.Action.Side() {
		return nil, fmt.Errorf("%s: %s does not match open %s", f.Symbol, f.Action, entry.Action)
	}
	delete(p.open, f.Symbol)

	rt := closeTrip(entry, f)
	p.trips = append(p.trips, rt)
	p.totals = p.totals.Add(rt.PnL)
	return &rt, nil
}

func closeTrip(entry, exit model.Fill) RoundTrip {
	side := entry.Action.Side()
	qty := entry.Qty
	diff := exit.Price.Sub(entry.Price)
	if side == model.SideShort {
		diff = diff.Neg()
	}
	pnl := diff.Mul(qty)

	pct := decimal.Zero
	if notional := entry.Price.Mul(qty); !notional.IsZero() {
		pct = pnl.Div(notional).Mul(hundred)
	}

	return RoundTrip{
		Symbol:     entry.Symbol,
		Side:       side,
		Qty:        qty,
		EntryPrice: entry.Price,
		ExitPrice:  exit.Price,
		EntryTime:  entry.FilledAt,
		ExitTime:   exit.FilledAt,
		Reason:     exit.Reason,
		PnL:        pnl,
		PnLPct:     pct,
	}
}

// OpenEntry returns the open entry fill for symbol, if any.
func (p *PnLTracker) OpenEntry(symbol string) (model.Fill, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.open[symbol]
	return f, ok
}

// Unrealized returns the PnL of the open entry for symbol marked at price.
func (p *PnLTracker) Unrealized(symbol string, price decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.open[symbol]
	if !ok {
		return decimal.Zero
	}
	return closeTrip(entry, model.Fill{Price: price}).PnL
}

// RealizedPnL returns the total realized PnL in quote currency.
func (p *PnLTracker) RealizedPnL() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totals
}

// RoundTrips returns a snapshot of all closed round trips.
func (p *PnLTracker) RoundTrips() []RoundTrip {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]RoundTrip, len(p.trips))
	copy(cp, p.trips)
	return cp
}

// PnLSummary aggregates a set of round trips.
type PnLSummary struct {
	Trades      int             `json:"trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	WinRate     decimal.Decimal `json:"win_rate"` // percent
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	TotalPct    decimal.Decimal `json:"total_pct"`    // sum of per-trade percent returns
	MaxDrawdown decimal.Decimal `json:"max_drawdown"` // percent points of the cumulative return curve
	Open        int             `json:"open"`
}

// Summary summarizes every round trip.
func (p *PnLTracker) Summary() PnLSummary {
	return p.SummarySince(time.Time{})
}

// SummarySince summarizes round trips that exited at or after since.
func (p *PnLTracker) SummarySince(since time.Time) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var trips []RoundTrip
	for _, rt := range p.trips {
		if !rt.ExitTime.Before(since) {
			trips = append(trips, rt)
		}
	}
	s := Summarize(trips)
	s.Open = len(p.open)
	return s
}

// Summarize computes statistics over trips in exit order.
func Summarize(trips []RoundTrip) PnLSummary {
	s := PnLSummary{Trades: len(trips)}
	var cum, peak decimal.Decimal
	for _, rt := range trips {
		if rt.Win() {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalPnL = s.TotalPnL.Add(rt.PnL)

		cum = cum.Add(rt.PnLPct)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
		}
	}
	s.TotalPct = cum
	if s.Trades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Mul(hundred).Div(decimal.NewFromInt(int64(s.Trades)))
	}
	return s
}
