package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/quote"
)

// Stepper is implemented by quote providers whose prices advance on demand
// (the built-in simulator). The stream ticks it once per update.
type Stepper interface {
	Step()
}

// SymbolLister is implemented by providers with a known symbol universe.
type SymbolLister interface {
	Symbols() []string
}

// StreamHandler pushes periodic price updates over a websocket.
type StreamHandler struct {
	quotes   quote.Provider
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler ticking at the given interval.
func NewStreamHandler(quotes quote.Provider, interval time.Duration, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		quotes:   quotes,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// priceUpdate is one symbol's price in a stream frame.
type priceUpdate struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	AsOf   string `json:"as_of"`
}

// ServePrices handles GET /ws/prices. Symbols come from the comma-separated
// "symbols" query parameter; with none given, providers with a known
// universe stream all of it.
func (h *StreamHandler) ServePrices(w http.ResponseWriter, r *http.Request) {
	symbols := h.resolveSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "symbols query parameter is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stepper, ok := h.quotes.(Stepper); ok {
				stepper.Step()
			}

			quotes, err := h.quotes.LookupMany(ctx, symbols)
			if err != nil {
				continue // transient source failure; next tick retries
			}

			updates := make([]priceUpdate, 0, len(quotes))
			for _, q := range quotes {
				updates = append(updates, priceUpdate{
					Symbol: q.Symbol,
					Price:  q.Price.StringFixed(2),
					AsOf:   q.AsOf.UTC().Format(time.RFC3339),
				})
			}
			sort.Slice(updates, func(i, j int) bool { return updates[i].Symbol < updates[j].Symbol })

			if err := conn.WriteJSON(updates); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) resolveSymbols(param string) []string {
	if param == "" {
		if lister, ok := h.quotes.(SymbolLister); ok {
			return lister.Symbols()
		}
		return nil
	}

	var symbols []string
	for _, s := range strings.Split(param, ",") {
		sym, err := domain.NormalizeSymbol(s)
		if err != nil {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols
}
