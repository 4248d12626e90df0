// Package quote resolves ticker symbols to current prices. The rest of the
// system treats the quote source as an external collaborator behind the
// Provider interface; implementations cover a real HTTP quote API, a
// deterministic simulator, and a caching decorator.
package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Provider resolves symbols to quotes.
//
// Lookup returns domain.ErrInvalidSymbol when the symbol cannot be resolved
// and domain.ErrQuoteUnavailable when the source is unreachable or failing.
//
// LookupMany resolves a set of distinct symbols in one call so read paths
// that value a whole portfolio keep their external-call count bounded and
// explicit. The returned map contains an entry for every resolved symbol;
// a missing entry means the symbol could not be resolved.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
	LookupMany(ctx context.Context, symbols []string) (map[string]Quote, error)
}
