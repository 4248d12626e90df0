package ledger

import (
	"context"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// Position is one holding valued at the current market price.
type Position struct {
	Holding     domain.Holding
	Price       decimal.Decimal
	MarketValue decimal.Decimal
}

// Valuation is the result of valuing a user's whole account.
type Valuation struct {
	Cash        decimal.Decimal
	Positions   []Position
	TotalAssets decimal.Decimal
}

// Value computes total assets: cash plus the market value of every held
// position, using one batch quote lookup for all distinct held symbols.
// If any held symbol cannot be quoted the whole valuation fails with
// domain.ErrQuoteUnavailable rather than silently excluding the position.
func (l *Ledger) Value(ctx context.Context, userID string) (*Valuation, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := l.store.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}

	quotes, err := l.quotes.LookupMany(ctx, symbols)
	if err != nil {
		return nil, err
	}

	total := user.Cash
	positions := make([]Position, 0, len(holdings))
	for _, h := range holdings {
		q, ok := quotes[h.Symbol]
		if !ok {
			return nil, domain.ErrQuoteUnavailable
		}
		mv := q.Price.Mul(h.Quantity)
		positions = append(positions, Position{Holding: h, Price: q.Price, MarketValue: mv})
		total = total.Add(mv)
	}

	return &Valuation{
		Cash:        user.Cash,
		Positions:   positions,
		TotalAssets: total,
	}, nil
}
