package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/service"
)

// PortfolioHandler serves the valued portfolio and the trade history.
type PortfolioHandler struct {
	portfolioSvc *service.PortfolioService
	logger       *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(portfolioSvc *service.PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolioSvc: portfolioSvc, logger: logger}
}

// positionResponse is one valued holding in the portfolio response.
type positionResponse struct {
	Symbol      string `json:"symbol"`
	Quantity    string `json:"quantity"`
	CostBasis   string `json:"cost_basis"`
	Price       string `json:"price"`
	MarketValue string `json:"market_value"`
}

// portfolioResponse is the JSON response for GET /portfolio.
type portfolioResponse struct {
	Cash        string             `json:"cash"`
	Positions   []positionResponse `json:"positions"`
	TotalAssets string             `json:"total_assets"`
}

// GetPortfolio handles GET /portfolio.
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "Login required")
		return
	}

	valuation, err := h.portfolioSvc.Portfolio(r.Context(), userID)
	if err != nil {
		h.mapPortfolioError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildPortfolioResponse(valuation))
}

// historyResponse is the JSON response for GET /history.
type historyResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Count        int                   `json:"count"`
}

// GetHistory handles GET /history.
func (h *PortfolioHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "Login required")
		return
	}

	txns, err := h.portfolioSvc.History(r.Context(), userID)
	if err != nil {
		h.mapPortfolioError(w, err)
		return
	}

	resp := historyResponse{
		Transactions: make([]transactionResponse, len(txns)),
		Count:        len(txns),
	}
	for i, t := range txns {
		resp.Transactions[i] = buildTransactionResponse(t)
	}

	WriteJSON(w, http.StatusOK, resp)
}

func buildPortfolioResponse(v *ledger.Valuation) portfolioResponse {
	positions := make([]positionResponse, len(v.Positions))
	for i, p := range v.Positions {
		positions[i] = positionResponse{
			Symbol:      p.Holding.Symbol,
			Quantity:    p.Holding.Quantity.String(),
			CostBasis:   p.Holding.CostBasis.StringFixed(2),
			Price:       p.Price.StringFixed(2),
			MarketValue: p.MarketValue.StringFixed(2),
		}
	}
	return portfolioResponse{
		Cash:        v.Cash.StringFixed(2),
		Positions:   positions,
		TotalAssets: v.TotalAssets.StringFixed(2),
	}
}

// mapPortfolioError maps read-path errors to HTTP responses.
func (h *PortfolioHandler) mapPortfolioError(w http.ResponseWriter, err error) {
	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error("portfolio storage failure",
			slog.String("op", storageErr.Op),
			slog.String("error", storageErr.Err.Error()),
		)
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, domain.ErrQuoteUnavailable):
		WriteError(w, http.StatusBadGateway, "quote_unavailable", "A held symbol could not be quoted")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
