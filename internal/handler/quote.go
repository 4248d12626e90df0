package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/quote"
)

// QuoteHandler serves ad hoc symbol lookups.
type QuoteHandler struct {
	quotes quote.Provider
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes quote.Provider) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// quoteLookupResponse is the JSON response for GET /quote/{symbol}.
type quoteLookupResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	AsOf   string `json:"as_of"`
}

// GetQuote handles GET /quote/{symbol}.
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	q, err := h.quotes.Lookup(r.Context(), symbol)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSymbol):
			WriteError(w, http.StatusNotFound, "invalid_symbol", "Symbol could not be resolved")
		case errors.Is(err, domain.ErrQuoteUnavailable):
			WriteError(w, http.StatusBadGateway, "quote_unavailable", "Quote source is unavailable")
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}
		return
	}

	WriteJSON(w, http.StatusOK, quoteLookupResponse{
		Symbol: q.Symbol,
		Price:  q.Price.StringFixed(2),
		AsOf:   q.AsOf.UTC().Format(time.RFC3339),
	})
}
