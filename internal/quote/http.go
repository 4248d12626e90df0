package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// HTTPProvider fetches quotes from an external quote API over HTTP.
// The API is expected to answer GET {base}/quote?symbol=XXX with
// {"symbol": "XXX", "price": 123.45}, or 404 for unknown symbols.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates an HTTPProvider for the given base URL. The
// timeout bounds each quote call; quote latency is on the critical path
// of every trade and valuation.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// lookupResponse is the quote API's JSON body.
type lookupResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Lookup resolves one symbol. 404 maps to domain.ErrInvalidSymbol; transport
// failures and non-2xx statuses map to domain.ErrQuoteUnavailable.
func (p *HTTPProvider) Lookup(ctx context.Context, symbol string) (Quote, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	u := fmt.Sprintf("%s/quote?symbol=%s", p.baseURL, url.QueryEscape(sym))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, domain.ErrQuoteUnavailable
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, domain.ErrQuoteUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, domain.ErrInvalidSymbol
	case resp.StatusCode != http.StatusOK:
		return Quote{}, domain.ErrQuoteUnavailable
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, domain.ErrQuoteUnavailable
	}
	if body.Symbol == "" {
		body.Symbol = sym
	}
	if !body.Price.IsPositive() {
		return Quote{}, domain.ErrQuoteUnavailable
	}

	return Quote{Symbol: body.Symbol, Price: body.Price, AsOf: time.Now()}, nil
}

// LookupMany resolves each distinct symbol with one call apiece. Unknown
// symbols are omitted from the result; an unreachable source fails the
// whole batch.
func (p *HTTPProvider) LookupMany(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		q, err := p.Lookup(ctx, sym)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSymbol) {
				continue
			}
			return nil, err
		}
		quotes[q.Symbol] = q
	}
	return quotes, nil
}
