package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trendbot/internal/model"
)

// PaperPlacer fills every intent instantly at its reference price with a
// fixed quantity. There is no slippage or fee model.
type PaperPlacer struct {
	mu    sync.RWMutex
	qty   decimal.Decimal
	fills []model.Fill

	// Now stamps fills; defaults to time.Now. Backtests point it at the bar clock.
	Now func() time.Time
}

var _ Placer = (*PaperPlacer)(nil)

// NewPaperPlacer creates a paper placer trading qty base units per order.
func NewPaperPlacer(qty decimal.Decimal) *PaperPlacer {
	return &PaperPlacer{
		qty:   qty,
		fills: make([]model.Fill, 0, 256),
		Now:   time.Now,
	}
}

// Place simulates an immediate fill.
func (p *PaperPlacer) Place(ctx context.Context, intent model.OrderIntent) (model.Fill, error) {
	if err := ctx.Err(); err != nil {
		return model.Fill{}, err
	}
	if intent.ReferencePrice <= 0 {
		return model.Fill{}, fmt.Errorf("%w: reference price %v", ErrRejected, intent.ReferencePrice)
	}

	f := model.Fill{
		OrderID:  "paper-" + uuid.NewString(),
		IntentID: intent.ID,
		Symbol:   intent.Symbol,
		Action:   intent.Action,
		Reason:   intent.Reason,
		Qty:      p.qty,
		Price:    decimal.NewFromFloat(intent.ReferencePrice),
		FilledAt: p.Now().UTC(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, f)
	p.mu.Unlock()
	return f, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperPlacer) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
