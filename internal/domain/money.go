package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MoneyFromFloat converts a float64 dollar amount to an exact Decimal.
// It validates that the input has at most 2 decimal places and returns
// an error if more precision is provided. Uses math.Round after scaling
// to handle floating-point representation issues.
func MoneyFromFloat(f float64) (decimal.Decimal, error) {
	// Scale by 1000 to check for a third decimal place.
	// Round to avoid floating-point artifacts (e.g., 1.10 * 1000 = 1099.9999...).
	scaled := math.Round(f * 1000)
	if math.Mod(scaled, 10) != 0 {
		return decimal.Zero, fmt.Errorf("monetary values must have at most 2 decimal places")
	}

	cents := int64(math.Round(f * 100))
	return decimal.New(cents, -2), nil
}

// QuantityFromFloat converts a float64 share count to an exact Decimal.
// Fractional quantities are allowed with at most 4 decimal places.
func QuantityFromFloat(f float64) (decimal.Decimal, error) {
	scaled := math.Round(f * 100000)
	if math.Mod(scaled, 10) != 0 {
		return decimal.Zero, fmt.Errorf("share quantities must have at most 4 decimal places")
	}

	units := int64(math.Round(f * 10000))
	return decimal.New(units, -4), nil
}
