package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Transaction is an immutable append-only record of one executed trade.
// The transaction log is the source of truth for trade history; it is never
// mutated or deleted.
type Transaction struct {
	TransactionID string
	UserID        string
	Symbol        string
	Side          Side
	UnitPrice     decimal.Decimal
	Quantity      decimal.Decimal
	ExecutedAt    time.Time
}

// Total returns the cash value of the transaction (unit price × quantity).
func (t *Transaction) Total() decimal.Decimal {
	return t.UnitPrice.Mul(t.Quantity)
}
