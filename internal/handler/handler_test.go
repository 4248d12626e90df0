package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfreitas/paperbroker/internal/auth"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/quote"
	"github.com/mfreitas/paperbroker/internal/service"
	"github.com/mfreitas/paperbroker/internal/store"
	"github.com/shopspring/decimal"
)

// staticQuotes serves fixed prices; tests mutate the table between calls.
type staticQuotes struct {
	prices map[string]decimal.Decimal
}

func (s *staticQuotes) Lookup(ctx context.Context, symbol string) (quote.Quote, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return quote.Quote{}, err
	}
	price, ok := s.prices[sym]
	if !ok {
		return quote.Quote{}, domain.ErrInvalidSymbol
	}
	return quote.Quote{Symbol: sym, Price: price, AsOf: time.Now()}, nil
}

func (s *staticQuotes) LookupMany(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	quotes := make(map[string]quote.Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := s.Lookup(ctx, symbol)
		if err != nil {
			continue
		}
		quotes[q.Symbol] = q
	}
	return quotes, nil
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

// newTestServer wires the full stack over a memory store and static quotes,
// and returns a client with a cookie jar so the session flows like a browser.
func newTestServer(t *testing.T) (*httptest.Server, *http.Client, *staticQuotes) {
	t.Helper()

	st := store.NewMemoryStore()
	quotes := &staticQuotes{prices: map[string]decimal.Decimal{
		"AAA": mustDec(t, "50.00"),
		"BBB": mustDec(t, "20.00"),
	}}
	sessions := auth.NewSessionStore(time.Hour)
	lg := ledger.New(st, quotes, ledger.AverageCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(RouterConfig{
		AccountSvc:     service.NewAccountService(st, sessions, mustDec(t, "10000.00")),
		PortfolioSvc:   service.NewPortfolioService(st, lg),
		Ledger:         lg,
		Quotes:         quotes,
		Sessions:       sessions,
		SessionTTL:     time.Hour,
		StreamInterval: 10 * time.Millisecond,
		Logger:         logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return srv, &http.Client{Jar: jar}, quotes
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func register(t *testing.T, client *http.Client, base, username, password string) {
	t.Helper()
	resp := postJSON(t, client, base+"/register", map[string]string{
		"username": username, "password": password,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
}

func login(t *testing.T, client *http.Client, base, username, password string) {
	t.Helper()
	resp := postJSON(t, client, base+"/login", map[string]string{
		"username": username, "password": password,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
}

func TestFullTradingSession(t *testing.T) {
	srv, client, quotes := newTestServer(t)

	// Register.
	resp := postJSON(t, client, srv.URL+"/register", map[string]string{
		"username": "alice", "password": "sup3rsecret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	var user struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Cash     string `json:"cash"`
	}
	decodeBody(t, resp, &user)
	if user.Cash != "10000.00" {
		t.Errorf("starting cash = %q, want 10000.00", user.Cash)
	}

	// Login sets the session cookie.
	login(t, client, srv.URL, "alice", "sup3rsecret")

	// Quote.
	resp = getJSON(t, client, srv.URL+"/quote/AAA")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quote: status %d", resp.StatusCode)
	}
	var q struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	decodeBody(t, resp, &q)
	if q.Symbol != "AAA" || q.Price != "50.00" {
		t.Errorf("quote = %+v, want AAA at 50.00", q)
	}

	// Buy 10 AAA at 50.00.
	resp = postJSON(t, client, srv.URL+"/trades/buy", map[string]any{
		"symbol": "AAA", "quantity": 10,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("buy: status %d", resp.StatusCode)
	}
	var trade struct {
		Transaction struct {
			Side      string `json:"side"`
			UnitPrice string `json:"unit_price"`
			Quantity  string `json:"quantity"`
			Total     string `json:"total"`
		} `json:"transaction"`
		Cash    string `json:"cash"`
		Holding *struct {
			Symbol    string `json:"symbol"`
			Quantity  string `json:"quantity"`
			CostBasis string `json:"cost_basis"`
		} `json:"holding"`
	}
	decodeBody(t, resp, &trade)
	if trade.Cash != "9500.00" {
		t.Errorf("cash after buy = %q, want 9500.00", trade.Cash)
	}
	if trade.Holding == nil || trade.Holding.Quantity != "10" || trade.Holding.CostBasis != "500.00" {
		t.Errorf("holding after buy = %+v", trade.Holding)
	}
	if trade.Transaction.Side != "buy" || trade.Transaction.Total != "500.00" {
		t.Errorf("transaction after buy = %+v", trade.Transaction)
	}

	// Portfolio values the position at the live price.
	resp = getJSON(t, client, srv.URL+"/portfolio")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio: status %d", resp.StatusCode)
	}
	var portfolio struct {
		Cash      string `json:"cash"`
		Positions []struct {
			Symbol      string `json:"symbol"`
			Quantity    string `json:"quantity"`
			MarketValue string `json:"market_value"`
		} `json:"positions"`
		TotalAssets string `json:"total_assets"`
	}
	decodeBody(t, resp, &portfolio)
	if portfolio.Cash != "9500.00" || portfolio.TotalAssets != "10000.00" {
		t.Errorf("portfolio = %+v, want cash 9500.00 total 10000.00", portfolio)
	}
	if len(portfolio.Positions) != 1 || portfolio.Positions[0].MarketValue != "500.00" {
		t.Errorf("positions = %+v", portfolio.Positions)
	}

	// Price moves up, sell the whole position.
	quotes.prices["AAA"] = mustDec(t, "60.00")
	resp = postJSON(t, client, srv.URL+"/trades/sell", map[string]any{
		"symbol": "AAA", "quantity": 10,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("sell: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &trade)
	if trade.Cash != "10100.00" {
		t.Errorf("cash after sell = %q, want 10100.00", trade.Cash)
	}
	if trade.Holding != nil {
		t.Errorf("holding after full sell = %+v, want null", trade.Holding)
	}
	if trade.Transaction.Side != "sell" || trade.Transaction.UnitPrice != "60.00" {
		t.Errorf("transaction after sell = %+v", trade.Transaction)
	}

	// History lists both trades, newest first.
	resp = getJSON(t, client, srv.URL+"/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	var history struct {
		Transactions []struct {
			Side string `json:"side"`
		} `json:"transactions"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &history)
	if history.Count != 2 || len(history.Transactions) != 2 {
		t.Fatalf("history = %+v, want 2 transactions", history)
	}
	if history.Transactions[0].Side != "sell" || history.Transactions[1].Side != "buy" {
		t.Errorf("history order = %+v, want sell then buy", history.Transactions)
	}
}

func TestAuthenticatedRoutesRequireSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := &http.Client{} // no cookie jar, no session

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/trades/buy"},
		{http.MethodPost, "/trades/sell"},
		{http.MethodGet, "/portfolio"},
		{http.MethodGet, "/history"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var resp *http.Response
			var err error
			if tt.method == http.MethodPost {
				resp, err = client.Post(srv.URL+tt.path, "application/json",
					bytes.NewReader([]byte(`{"symbol":"AAA","quantity":1}`)))
			} else {
				resp, err = client.Get(srv.URL + tt.path)
			}
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != "unauthenticated" {
				t.Errorf("error = %q, want unauthenticated", body.Error)
			}
		})
	}
}

func TestLogoutEndsSession(t *testing.T) {
	srv, client, _ := newTestServer(t)

	register(t, client, srv.URL, "alice", "sup3rsecret")
	login(t, client, srv.URL, "alice", "sup3rsecret")

	resp := getJSON(t, client, srv.URL+"/portfolio")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio while logged in: status %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/logout", nil)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}

	resp = getJSON(t, client, srv.URL+"/portfolio")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("portfolio after logout: status %d, want 401", resp.StatusCode)
	}
}

func TestTradeErrorMapping(t *testing.T) {
	srv, client, _ := newTestServer(t)

	register(t, client, srv.URL, "alice", "sup3rsecret")
	login(t, client, srv.URL, "alice", "sup3rsecret")

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{"buy unknown symbol", "/trades/buy",
			map[string]any{"symbol": "ZZZ", "quantity": 1},
			http.StatusBadRequest, "invalid_symbol"},
		{"buy zero quantity", "/trades/buy",
			map[string]any{"symbol": "AAA", "quantity": 0},
			http.StatusBadRequest, "invalid_quantity"},
		{"buy fractional quantity", "/trades/buy",
			map[string]any{"symbol": "AAA", "quantity": 1.5},
			http.StatusBadRequest, "invalid_quantity"},
		{"buy quantity beyond int64", "/trades/buy",
			map[string]any{"symbol": "AAA", "quantity": 1e19},
			http.StatusBadRequest, "invalid_quantity"},
		{"buy negative quantity beyond int64", "/trades/buy",
			map[string]any{"symbol": "AAA", "quantity": -1e19},
			http.StatusBadRequest, "invalid_quantity"},
		{"buy beyond cash", "/trades/buy",
			map[string]any{"symbol": "AAA", "quantity": 1000},
			http.StatusConflict, "insufficient_funds"},
		{"sell never owned", "/trades/sell",
			map[string]any{"symbol": "BBB", "quantity": 5},
			http.StatusConflict, "not_owned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, client, srv.URL+tt.path, tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
		})
	}
}

func TestSellMoreThanHeld(t *testing.T) {
	srv, client, _ := newTestServer(t)

	register(t, client, srv.URL, "alice", "sup3rsecret")
	login(t, client, srv.URL, "alice", "sup3rsecret")

	resp := postJSON(t, client, srv.URL+"/trades/buy", map[string]any{
		"symbol": "AAA", "quantity": 5,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("buy: status %d", resp.StatusCode)
	}

	resp = postJSON(t, client, srv.URL+"/trades/sell", map[string]any{
		"symbol": "AAA", "quantity": 6,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "insufficient_shares" {
		t.Errorf("error = %q, want insufficient_shares", body.Error)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv, client, _ := newTestServer(t)

	register(t, client, srv.URL, "alice", "sup3rsecret")

	resp := postJSON(t, client, srv.URL+"/register", map[string]string{
		"username": "alice", "password": "otherpass99",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv, client, _ := newTestServer(t)

	register(t, client, srv.URL, "alice", "sup3rsecret")

	resp := postJSON(t, client, srv.URL+"/login", map[string]string{
		"username": "alice", "password": "wrongwrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_credentials" {
		t.Errorf("error = %q, want invalid_credentials", body.Error)
	}
}

func TestQuoteUnknownSymbol(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp := getJSON(t, client, srv.URL+"/quote/ZZZ")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestContentTypeRequiredForBody(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp, err := client.Post(srv.URL+"/register", "text/plain",
		bytes.NewReader([]byte(`{"username":"alice","password":"sup3rsecret"}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp, err := client.Post(srv.URL+"/register", "application/json",
		bytes.NewReader([]byte(`{"username":"alice","password":"sup3rsecret","admin":true}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp := getJSON(t, client, srv.URL+"/healthz")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
