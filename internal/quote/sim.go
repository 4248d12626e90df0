package quote

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// defaultUniverse seeds the simulator when no quote API is configured.
var defaultUniverse = map[string]float64{
	"AAPL":  150.00,
	"AMZN":  180.00,
	"GOOGL": 140.00,
	"MSFT":  380.00,
	"NFLX":  600.00,
	"TSLA":  250.00,
}

// SimProvider is an in-process quote source that random-walks a fixed symbol
// table. It backs dev mode and the websocket price stream, and gives tests a
// provider with no network dependency.
type SimProvider struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

// NewSimProvider creates a simulator over the default symbol universe.
// The seed makes price walks reproducible.
func NewSimProvider(seed int64) *SimProvider {
	prices := make(map[string]decimal.Decimal, len(defaultUniverse))
	for sym, p := range defaultUniverse {
		prices[sym] = decimal.NewFromFloat(p)
	}
	return &SimProvider{
		rng:    rand.New(rand.NewSource(seed)),
		prices: prices,
	}
}

// Lookup resolves a symbol against the simulated universe.
func (p *SimProvider) Lookup(ctx context.Context, symbol string) (Quote, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[sym]
	if !ok {
		return Quote{}, domain.ErrInvalidSymbol
	}
	return Quote{Symbol: sym, Price: price, AsOf: time.Now()}, nil
}

// LookupMany resolves every known symbol in the request; unknown symbols are
// omitted from the result.
func (p *SimProvider) LookupMany(ctx context.Context, symbols []string) (map[string]Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	quotes := make(map[string]Quote, len(symbols))
	for _, symbol := range symbols {
		sym, err := domain.NormalizeSymbol(symbol)
		if err != nil {
			continue
		}
		if price, ok := p.prices[sym]; ok {
			quotes[sym] = Quote{Symbol: sym, Price: price, AsOf: now}
		}
	}
	return quotes, nil
}

// Step advances every price by a random move in (-2%, +2%), rounded to
// cents. The price stream calls this once per tick.
func (p *SimProvider) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sym, price := range p.prices {
		pct := (p.rng.Float64() - 0.5) * 4 // -2% .. +2%
		factor := decimal.NewFromFloat(1 + pct/100)
		next := price.Mul(factor).Round(2)
		if next.IsPositive() {
			p.prices[sym] = next
		}
	}
}

// Symbols returns the simulated universe in sorted order.
func (p *SimProvider) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	syms := make([]string, 0, len(p.prices))
	for sym := range p.prices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}
