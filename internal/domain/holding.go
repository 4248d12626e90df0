package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents a user's current position in one symbol. A holding
// exists only while its quantity is positive; selling a position down to
// exactly zero deletes it. CostBasis is the cumulative purchase cost
// attributed to the position, reduced on sells per the configured
// cost-basis policy.
type Holding struct {
	UserID    string
	Symbol    string
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	UpdatedAt time.Time
}
