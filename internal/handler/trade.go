package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/ledger"
)

// TradeHandler handles buy and sell requests.
type TradeHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(lg *ledger.Ledger, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{ledger: lg, logger: logger}
}

// tradeRequest is the JSON request body for POST /trades/buy and
// POST /trades/sell. Buys require a whole share count; sells may be
// fractional.
type tradeRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// transactionResponse is the JSON shape for one transaction record.
type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	UnitPrice     string `json:"unit_price"`
	Quantity      string `json:"quantity"`
	Total         string `json:"total"`
	ExecutedAt    string `json:"executed_at"`
}

// holdingResponse is the JSON shape for one holding.
type holdingResponse struct {
	Symbol    string `json:"symbol"`
	Quantity  string `json:"quantity"`
	CostBasis string `json:"cost_basis"`
}

// tradeResponse is the JSON response for an accepted trade. Holding is null
// when the sell closed the position.
type tradeResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Cash        string              `json:"cash"`
	Holding     *holdingResponse    `json:"holding"`
}

func buildTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: t.TransactionID,
		Symbol:        t.Symbol,
		Side:          string(t.Side),
		UnitPrice:     t.UnitPrice.StringFixed(2),
		Quantity:      t.Quantity.String(),
		Total:         t.Total().StringFixed(2),
		ExecutedAt:    t.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

func buildTradeResponse(res *ledger.TradeResult) tradeResponse {
	resp := tradeResponse{
		Transaction: buildTransactionResponse(res.Transaction),
		Cash:        res.Cash.StringFixed(2),
	}
	if res.Holding != nil {
		resp.Holding = &holdingResponse{
			Symbol:    res.Holding.Symbol,
			Quantity:  res.Holding.Quantity.String(),
			CostBasis: res.Holding.CostBasis.StringFixed(2),
		}
	}
	return resp
}

// Buy handles POST /trades/buy.
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "Login required")
		return
	}

	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Buys are whole shares only, and the count must fit in an int64 before
	// conversion.
	if req.Quantity != math.Trunc(req.Quantity) ||
		req.Quantity >= math.MaxInt64 || req.Quantity <= math.MinInt64 {
		h.mapTradeError(w, domain.ErrInvalidQuantity)
		return
	}

	result, err := h.ledger.Buy(r.Context(), userID, req.Symbol, int64(req.Quantity))
	if err != nil {
		h.mapTradeError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildTradeResponse(result))
}

// Sell handles POST /trades/sell.
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "Login required")
		return
	}

	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	qty, err := domain.QuantityFromFloat(req.Quantity)
	if err != nil {
		h.mapTradeError(w, domain.ErrInvalidQuantity)
		return
	}

	result, err := h.ledger.Sell(r.Context(), userID, req.Symbol, qty)
	if err != nil {
		h.mapTradeError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildTradeResponse(result))
}

// mapTradeError maps ledger errors to HTTP responses. Storage failures are
// logged and surface as a generic 500 with no detail.
func (h *TradeHandler) mapTradeError(w http.ResponseWriter, err error) {
	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error("trade storage failure",
			slog.String("op", storageErr.Op),
			slog.String("error", storageErr.Err.Error()),
		)
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		WriteError(w, http.StatusBadRequest, "invalid_symbol", "Symbol could not be resolved")
	case errors.Is(err, domain.ErrInvalidQuantity):
		WriteError(w, http.StatusBadRequest, "invalid_quantity", "Quantity must be a positive share count")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusConflict, "insufficient_funds", "Not enough cash for this purchase")
	case errors.Is(err, domain.ErrNotOwned):
		WriteError(w, http.StatusConflict, "not_owned", "You don't own this stock")
	case errors.Is(err, domain.ErrInsufficientShares):
		WriteError(w, http.StatusConflict, "insufficient_shares", "Trying to sell more shares than held")
	case errors.Is(err, domain.ErrQuoteUnavailable):
		WriteError(w, http.StatusBadGateway, "quote_unavailable", "Quote source is unavailable")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
