package quote

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/mfreitas/paperbroker/internal/domain"
)

// CachedProvider decorates another Provider with a TTL cache so that hot
// symbols (the ones on every rendered portfolio) don't hit the external
// source once per request. Only successful lookups are cached; not-found
// and unavailable results always go back to the inner provider.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedProvider wraps inner with a quote cache holding up to maxEntries
// quotes, each expiring after ttl.
func NewCachedProvider(inner Provider, maxEntries int64, ttl time.Duration) (*CachedProvider, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: c, ttl: ttl}, nil
}

// Lookup returns a cached quote if one is fresh, otherwise asks the inner
// provider and caches the result. Cache keys are canonical symbols, so
// "aapl" and "AAPL" share an entry.
func (p *CachedProvider) Lookup(ctx context.Context, symbol string) (Quote, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	if v, ok := p.cache.Get(sym); ok {
		return v.(Quote), nil
	}

	q, err := p.inner.Lookup(ctx, sym)
	if err != nil {
		return Quote{}, err
	}
	p.cache.SetWithTTL(q.Symbol, q, 1, p.ttl)
	return q, nil
}

// LookupMany serves what it can from the cache and batches the misses to the
// inner provider. Unresolvable symbols are omitted, matching the inner
// providers.
func (p *CachedProvider) LookupMany(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	var misses []string
	for _, symbol := range symbols {
		sym, err := domain.NormalizeSymbol(symbol)
		if err != nil {
			continue
		}
		if v, ok := p.cache.Get(sym); ok {
			quotes[sym] = v.(Quote)
		} else {
			misses = append(misses, sym)
		}
	}

	if len(misses) == 0 {
		return quotes, nil
	}

	fetched, err := p.inner.LookupMany(ctx, misses)
	if err != nil {
		return nil, err
	}
	for sym, q := range fetched {
		p.cache.SetWithTTL(sym, q, 1, p.ttl)
		quotes[sym] = q
	}
	return quotes, nil
}

// Wait blocks until buffered cache writes are applied. Used by tests.
func (p *CachedProvider) Wait() {
	p.cache.Wait()
}
