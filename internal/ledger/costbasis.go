package ledger

import "fmt"

// CostBasisPolicy selects how a holding's recorded cost basis is reduced
// when shares are sold.
type CostBasisPolicy int

const (
	// AverageCost reduces the basis proportionally to the fraction of the
	// position sold (weighted-average cost accounting).
	AverageCost CostBasisPolicy = iota
	// CashFlow reduces the basis by the sale's market value. This conflates
	// basis with realized cash flow and drifts from true cost over partial
	// sells; it exists for compatibility with ledgers recorded that way.
	CashFlow
)

func (p CostBasisPolicy) String() string {
	switch p {
	case AverageCost:
		return "average"
	case CashFlow:
		return "cashflow"
	default:
		return "unknown"
	}
}

// ParseCostBasisPolicy parses a string into a CostBasisPolicy.
func ParseCostBasisPolicy(s string) (CostBasisPolicy, error) {
	switch s {
	case "average":
		return AverageCost, nil
	case "cashflow":
		return CashFlow, nil
	default:
		return 0, fmt.Errorf("unknown cost basis policy: %q", s)
	}
}
