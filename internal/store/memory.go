package store

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// holdingLess orders holdings by symbol so portfolio listings come back in
// symbol order straight from the tree.
func holdingLess(a, b domain.Holding) bool {
	return a.Symbol < b.Symbol
}

// userRecord is the in-memory state for one user.
type userRecord struct {
	user     domain.User
	holdings *btree.BTreeG[domain.Holding]
	txns     []*domain.Transaction // append-only, chronological
}

// MemoryStore is a thread-safe in-memory AccountStore. A per-user mutex
// serializes trade transactions for the same user.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
	names map[string]string // username → userID
	locks *userLocks
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*userRecord),
		names: make(map[string]string),
		locks: newUserLocks(),
	}
}

// CreateUser adds a user. Returns domain.ErrUsernameTaken if the username
// is already registered.
func (s *MemoryStore) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[u.Username]; exists {
		return domain.ErrUsernameTaken
	}

	const degree = 8
	s.users[u.UserID] = &userRecord{
		user:     *u,
		holdings: btree.NewG[domain.Holding](degree, holdingLess),
	}
	s.names[u.Username] = u.UserID
	return nil
}

// GetUser retrieves a user by ID. Returns a copy.
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// GetUserByUsername retrieves a user by username. Returns a copy.
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id].user
	return &u, nil
}

// Holdings returns the user's positions ordered by symbol.
func (s *MemoryStore) Holdings(ctx context.Context, userID string) ([]domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	holdings := make([]domain.Holding, 0, rec.holdings.Len())
	rec.holdings.Ascend(func(h domain.Holding) bool {
		holdings = append(holdings, h)
		return true
	})
	return holdings, nil
}

// Transactions returns the user's trade history, most recent first.
func (s *MemoryStore) Transactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	txns := make([]*domain.Transaction, len(rec.txns))
	for i, t := range rec.txns {
		cp := *t
		txns[len(rec.txns)-1-i] = &cp
	}
	return txns, nil
}

// BeginTrade opens a trade transaction for the user, taking the per-user
// lock. The lock is released on Commit or Rollback.
func (s *MemoryStore) BeginTrade(ctx context.Context, userID string) (TradeTx, error) {
	s.mu.RLock()
	_, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	s.locks.Lock(userID)

	// Snapshot cash under the store lock; holdings are read lazily.
	s.mu.RLock()
	rec, ok := s.users[userID]
	if !ok {
		s.mu.RUnlock()
		s.locks.Unlock(userID)
		return nil, domain.ErrUserNotFound
	}
	cash := rec.user.Cash
	s.mu.RUnlock()

	return &memTradeTx{
		store:   s,
		userID:  userID,
		cash:    cash,
		upserts: make(map[string]domain.Holding),
		deletes: make(map[string]bool),
	}, nil
}

// memTradeTx stages writes and applies them atomically on Commit.
type memTradeTx struct {
	store     *MemoryStore
	userID    string
	cash      decimal.Decimal
	cashDirty bool
	upserts   map[string]domain.Holding
	deletes   map[string]bool
	txns      []*domain.Transaction
	done      bool
}

func (tx *memTradeTx) Cash() decimal.Decimal {
	return tx.cash
}

func (tx *memTradeTx) SetCash(cash decimal.Decimal) {
	tx.cash = cash
	tx.cashDirty = true
}

func (tx *memTradeTx) Holding(symbol string) (domain.Holding, bool) {
	if tx.deletes[symbol] {
		return domain.Holding{}, false
	}
	if h, ok := tx.upserts[symbol]; ok {
		return h, true
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	rec := tx.store.users[tx.userID]
	return rec.holdings.Get(domain.Holding{Symbol: symbol})
}

func (tx *memTradeTx) UpsertHolding(h domain.Holding) {
	delete(tx.deletes, h.Symbol)
	tx.upserts[h.Symbol] = h
}

func (tx *memTradeTx) DeleteHolding(symbol string) {
	delete(tx.upserts, symbol)
	tx.deletes[symbol] = true
}

func (tx *memTradeTx) AppendTransaction(t *domain.Transaction) {
	tx.txns = append(tx.txns, t)
}

// Commit applies all staged writes under the store lock, then releases the
// per-user lock.
func (tx *memTradeTx) Commit() error {
	if tx.done {
		return ErrTxClosed
	}
	tx.done = true

	tx.store.mu.Lock()
	rec := tx.store.users[tx.userID]
	if tx.cashDirty {
		rec.user.Cash = tx.cash
	}
	for symbol := range tx.deletes {
		rec.holdings.Delete(domain.Holding{Symbol: symbol})
	}
	for _, h := range tx.upserts {
		rec.holdings.ReplaceOrInsert(h)
	}
	rec.txns = append(rec.txns, tx.txns...)
	tx.store.mu.Unlock()

	tx.store.locks.Unlock(tx.userID)
	return nil
}

// Rollback discards staged writes and releases the per-user lock. Calling
// Rollback after Commit is a no-op.
func (tx *memTradeTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.locks.Unlock(tx.userID)
	return nil
}

// userLocks hands out one mutex per user so concurrent trades by the same
// user are serialized without a global lock.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) Lock(userID string) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
}

func (l *userLocks) Unlock(userID string) {
	l.mu.Lock()
	m := l.locks[userID]
	l.mu.Unlock()

	if m != nil {
		m.Unlock()
	}
}
