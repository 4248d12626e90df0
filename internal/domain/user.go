package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account holder. Cash is the simulated cash
// balance; it is mutated by every buy and sell and never goes negative as a
// direct result of a buy.
type User struct {
	UserID       string
	Username     string
	PasswordHash string
	Cash         decimal.Decimal
	CreatedAt    time.Time
}
