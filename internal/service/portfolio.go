package service

import (
	"context"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/store"
)

// PortfolioService serves the read paths: the valued portfolio and the
// transaction history.
type PortfolioService struct {
	store  store.AccountStore
	ledger *ledger.Ledger
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(st store.AccountStore, lg *ledger.Ledger) *PortfolioService {
	return &PortfolioService{
		store:  st,
		ledger: lg,
	}
}

// Portfolio values the user's account at current market prices.
func (s *PortfolioService) Portfolio(ctx context.Context, userID string) (*ledger.Valuation, error) {
	return s.ledger.Value(ctx, userID)
}

// History returns the user's transaction log, most recent first.
func (s *PortfolioService) History(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return s.store.Transactions(ctx, userID)
}
