package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore is an AccountStore backed by Postgres. Trade transactions map
// to SQL transactions with a row lock on the user row, so concurrent trades
// by the same user serialize on the database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given DSN and verifies
// connectivity. The schema is expected to exist (see schema.sql).
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateUser persists a new user. A unique violation on username maps to
// domain.ErrUsernameTaken.
func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (user_id, username, password_hash, cash, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, u.UserID, u.Username, u.PasswordHash, u.Cash, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrUsernameTaken
		}
		return &domain.StorageError{Op: "create user", Err: err}
	}
	return nil
}

// GetUser returns the user by ID, or domain.ErrUserNotFound.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.getUser(ctx, "user_id", userID)
}

// GetUserByUsername returns the user by username, or domain.ErrUserNotFound.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *PostgresStore) getUser(ctx context.Context, column, key string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
        SELECT user_id, username, password_hash, cash, created_at
        FROM users WHERE `+column+` = $1
    `, key).Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Cash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get user", Err: err}
	}
	return &u, nil
}

// Holdings returns the user's positions ordered by symbol.
func (s *PostgresStore) Holdings(ctx context.Context, userID string) ([]domain.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_id, symbol, quantity, cost_basis, updated_at
        FROM holdings WHERE user_id = $1
        ORDER BY symbol
    `, userID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list holdings", Err: err}
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.CostBasis, &h.UpdatedAt); err != nil {
			return nil, &domain.StorageError{Op: "scan holding", Err: err}
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list holdings", Err: err}
	}
	return holdings, nil
}

// Transactions returns the user's trade history, most recent first.
func (s *PostgresStore) Transactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT transaction_id, user_id, symbol, side, unit_price, quantity, executed_at
        FROM transactions WHERE user_id = $1
        ORDER BY executed_at DESC, transaction_id
    `, userID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.TransactionID, &t.UserID, &t.Symbol, &t.Side, &t.UnitPrice, &t.Quantity, &t.ExecutedAt); err != nil {
			return nil, &domain.StorageError{Op: "scan transaction", Err: err}
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list transactions", Err: err}
	}
	return txns, nil
}

// BeginTrade starts a SQL transaction and locks the user row FOR UPDATE,
// snapshotting cash and holdings for the trade.
func (s *PostgresStore) BeginTrade(ctx context.Context, userID string) (TradeTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "begin trade", Err: err}
	}

	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx,
		"SELECT cash FROM users WHERE user_id = $1 FOR UPDATE", userID,
	).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		tx.Rollback()
		return nil, &domain.StorageError{Op: "lock user row", Err: err}
	}

	rows, err := tx.QueryContext(ctx, `
        SELECT user_id, symbol, quantity, cost_basis, updated_at
        FROM holdings WHERE user_id = $1 FOR UPDATE
    `, userID)
	if err != nil {
		tx.Rollback()
		return nil, &domain.StorageError{Op: "lock holdings", Err: err}
	}
	defer rows.Close()

	holdings := make(map[string]domain.Holding)
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.CostBasis, &h.UpdatedAt); err != nil {
			tx.Rollback()
			return nil, &domain.StorageError{Op: "scan holding", Err: err}
		}
		holdings[h.Symbol] = h
	}
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return nil, &domain.StorageError{Op: "lock holdings", Err: err}
	}

	return &pgTradeTx{
		ctx:      ctx,
		tx:       tx,
		userID:   userID,
		cash:     cash,
		holdings: holdings,
		upserts:  make(map[string]domain.Holding),
		deletes:  make(map[string]bool),
	}, nil
}

// pgTradeTx stages writes in memory and flushes them as SQL statements on
// Commit, inside the transaction opened by BeginTrade.
type pgTradeTx struct {
	ctx       context.Context
	tx        *sql.Tx
	userID    string
	cash      decimal.Decimal
	cashDirty bool
	holdings  map[string]domain.Holding
	upserts   map[string]domain.Holding
	deletes   map[string]bool
	txns      []*domain.Transaction
	done      bool
}

func (tx *pgTradeTx) Cash() decimal.Decimal {
	return tx.cash
}

func (tx *pgTradeTx) SetCash(cash decimal.Decimal) {
	tx.cash = cash
	tx.cashDirty = true
}

func (tx *pgTradeTx) Holding(symbol string) (domain.Holding, bool) {
	if tx.deletes[symbol] {
		return domain.Holding{}, false
	}
	if h, ok := tx.upserts[symbol]; ok {
		return h, true
	}
	h, ok := tx.holdings[symbol]
	return h, ok
}

func (tx *pgTradeTx) UpsertHolding(h domain.Holding) {
	delete(tx.deletes, h.Symbol)
	tx.upserts[h.Symbol] = h
}

func (tx *pgTradeTx) DeleteHolding(symbol string) {
	delete(tx.upserts, symbol)
	tx.deletes[symbol] = true
}

func (tx *pgTradeTx) AppendTransaction(t *domain.Transaction) {
	tx.txns = append(tx.txns, t)
}

func (tx *pgTradeTx) Commit() error {
	if tx.done {
		return ErrTxClosed
	}
	tx.done = true

	if tx.cashDirty {
		if _, err := tx.tx.ExecContext(tx.ctx,
			"UPDATE users SET cash = $1 WHERE user_id = $2", tx.cash, tx.userID,
		); err != nil {
			tx.tx.Rollback()
			return &domain.StorageError{Op: "update cash", Err: err}
		}
	}

	for symbol := range tx.deletes {
		if _, err := tx.tx.ExecContext(tx.ctx,
			"DELETE FROM holdings WHERE user_id = $1 AND symbol = $2", tx.userID, symbol,
		); err != nil {
			tx.tx.Rollback()
			return &domain.StorageError{Op: "delete holding", Err: err}
		}
	}

	for _, h := range tx.upserts {
		if _, err := tx.tx.ExecContext(tx.ctx, `
            INSERT INTO holdings (user_id, symbol, quantity, cost_basis, updated_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (user_id, symbol) DO UPDATE SET
                quantity = EXCLUDED.quantity,
                cost_basis = EXCLUDED.cost_basis,
                updated_at = EXCLUDED.updated_at
        `, h.UserID, h.Symbol, h.Quantity, h.CostBasis, h.UpdatedAt); err != nil {
			tx.tx.Rollback()
			return &domain.StorageError{Op: "upsert holding", Err: err}
		}
	}

	for _, t := range tx.txns {
		if _, err := tx.tx.ExecContext(tx.ctx, `
            INSERT INTO transactions (transaction_id, user_id, symbol, side, unit_price, quantity, executed_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, t.TransactionID, t.UserID, t.Symbol, string(t.Side), t.UnitPrice, t.Quantity, t.ExecutedAt); err != nil {
			tx.tx.Rollback()
			return &domain.StorageError{Op: "append transaction", Err: err}
		}
	}

	if err := tx.tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit trade", Err: err}
	}
	return nil
}

func (tx *pgTradeTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.tx.Rollback(); err != nil {
		return &domain.StorageError{Op: "rollback trade", Err: err}
	}
	return nil
}
