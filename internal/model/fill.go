package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a confirmed execution of an OrderIntent. Quantities and prices are
// decimals so PnL arithmetic stays exact.
type Fill struct {
	OrderID  string          `json:"order_id"`
	IntentID string          `json:"intent_id"`
	Symbol   string          `json:"symbol"`
	Action   Action          `json:"action"`
	Reason   Reason          `json:"reason"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}
