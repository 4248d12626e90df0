// Package store persists users, holdings, and the transaction log. Two
// implementations exist: an in-memory store for dev mode and tests, and a
// Postgres store. Both expose the same transactional trade surface so the
// ledger's cash/holding/transaction writes apply as a single atomic unit.
package store

import (
	"context"
	"errors"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrTxClosed is returned when a TradeTx is used after Commit or Rollback.
var ErrTxClosed = errors.New("trade transaction already closed")

// AccountStore is the persistence surface consumed by the ledger and
// services. Read paths return copies; mutations on cash, holdings, and the
// transaction log only happen through a TradeTx.
type AccountStore interface {
	// CreateUser persists a new user. Returns domain.ErrUsernameTaken if the
	// username is already registered.
	CreateUser(ctx context.Context, u *domain.User) error
	// GetUser returns the user by ID, or domain.ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	// GetUserByUsername returns the user by username, or domain.ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// Holdings returns the user's positions ordered by symbol.
	Holdings(ctx context.Context, userID string) ([]domain.Holding, error)
	// Transactions returns the user's trade history, most recent first.
	Transactions(ctx context.Context, userID string) ([]*domain.Transaction, error)
	// BeginTrade opens a trade transaction for one user. Trades for the same
	// user are serialized: a second BeginTrade blocks until the first commits
	// or rolls back, so there is no lost update between the balance-check
	// read and the balance write.
	BeginTrade(ctx context.Context, userID string) (TradeTx, error)
}

// TradeTx is one sequential unit of work against a single user's account.
// Writes are staged and only become observable on Commit; Rollback leaves no
// partial effect.
type TradeTx interface {
	// Cash returns the user's cash balance as of BeginTrade, adjusted for any
	// staged SetCash.
	Cash() decimal.Decimal
	SetCash(cash decimal.Decimal)
	// Holding returns the user's position in symbol, reflecting staged writes.
	Holding(symbol string) (domain.Holding, bool)
	UpsertHolding(h domain.Holding)
	DeleteHolding(symbol string)
	AppendTransaction(t *domain.Transaction)
	Commit() error
	Rollback() error
}
