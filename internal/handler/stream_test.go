package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mfreitas/paperbroker/internal/auth"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/quote"
	"github.com/mfreitas/paperbroker/internal/service"
	"github.com/mfreitas/paperbroker/internal/store"
)

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestPriceStream_DeliversFrames(t *testing.T) {
	srv, _, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws/prices?symbols=AAA,BBB"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
		AsOf   string `json:"as_of"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	if len(frame) != 2 {
		t.Fatalf("frame = %+v, want AAA and BBB", frame)
	}
	if frame[0].Symbol != "AAA" || frame[1].Symbol != "BBB" {
		t.Errorf("frame order = %+v, want sorted by symbol", frame)
	}
	if frame[0].Price != "50.00" {
		t.Errorf("AAA price = %q, want 50.00", frame[0].Price)
	}
}

func TestPriceStream_SkipsUnknownSymbols(t *testing.T) {
	srv, _, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws/prices?symbols=AAA,ZZZ"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame []struct {
		Symbol string `json:"symbol"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if len(frame) != 1 || frame[0].Symbol != "AAA" {
		t.Errorf("frame = %+v, want AAA only", frame)
	}
}

// newSimServer wires the router the way dev mode does: a simulator behind
// the quote cache for trades and valuation, with the stream fed by the
// simulator directly.
func newSimServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemoryStore()
	sim := quote.NewSimProvider(42)
	cached, err := quote.NewCachedProvider(sim, 128, time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	sessions := auth.NewSessionStore(time.Hour)
	lg := ledger.New(st, cached, ledger.AverageCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(RouterConfig{
		AccountSvc:     service.NewAccountService(st, sessions, mustDec(t, "10000.00")),
		PortfolioSvc:   service.NewPortfolioService(st, lg),
		Ledger:         lg,
		Quotes:         cached,
		StreamQuotes:   sim,
		Sessions:       sessions,
		SessionTTL:     time.Hour,
		StreamInterval: 10 * time.Millisecond,
		Logger:         logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	var frame []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	prices := make(map[string]string, len(frame))
	for _, u := range frame {
		prices[u.Symbol] = u.Price
	}
	return prices
}

func TestPriceStream_SimulatorUniverseAndMovement(t *testing.T) {
	srv := newSimServer(t)

	// No symbols parameter: the simulator's whole universe streams.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws/prices"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	first := readFrame(t, conn)
	if len(first) != 6 {
		t.Fatalf("frame carries %d symbols, want the full universe of 6", len(first))
	}
	if _, ok := first["AAPL"]; !ok {
		t.Fatalf("frame = %v, want AAPL present", first)
	}

	// Prices must keep walking tick over tick; a frozen stream means the
	// simulator is not being stepped.
	moved := false
	for i := 0; i < 5 && !moved; i++ {
		next := readFrame(t, conn)
		for sym, price := range next {
			if first[sym] != price {
				moved = true
				break
			}
		}
	}
	if !moved {
		t.Error("prices never changed across frames")
	}
}

func TestPriceStream_NoSymbolsIsBadRequest(t *testing.T) {
	srv, client, _ := newTestServer(t)

	// staticQuotes has no published universe, so symbols is mandatory.
	resp, err := client.Get(srv.URL + "/ws/prices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
