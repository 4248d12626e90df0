// Package ledger implements the portfolio accounting rules: the buy/sell
// state transitions over cash, holdings, and the transaction log, and the
// valuation read path. All mutations for one trade apply atomically through
// a single store.TradeTx.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/quote"
	"github.com/mfreitas/paperbroker/internal/store"
	"github.com/shopspring/decimal"
)

// Ledger validates and executes trades for authenticated users. The acting
// user is always an explicit argument; the ledger holds no ambient identity.
type Ledger struct {
	store  store.AccountStore
	quotes quote.Provider
	policy CostBasisPolicy
	now    func() time.Time
}

// New creates a Ledger with the given store, quote provider, and cost-basis
// policy.
func New(st store.AccountStore, quotes quote.Provider, policy CostBasisPolicy) *Ledger {
	return &Ledger{
		store:  st,
		quotes: quotes,
		policy: policy,
		now:    time.Now,
	}
}

// TradeResult describes the state after an accepted trade.
type TradeResult struct {
	Transaction *domain.Transaction
	Cash        decimal.Decimal
	Holding     *domain.Holding // nil when the position was closed
}

// Buy purchases quantity whole shares of symbol at the current quoted price.
//
// Rejections: domain.ErrInvalidSymbol (unresolvable symbol),
// domain.ErrInvalidQuantity (non-positive count),
// domain.ErrInsufficientFunds (total cost exceeds cash),
// domain.ErrQuoteUnavailable (quote source down). A rejected buy leaves no
// observable state change.
func (l *Ledger) Buy(ctx context.Context, userID, symbol string, quantity int64) (*TradeResult, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	q, err := l.quotes.Lookup(ctx, sym)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	qty := decimal.NewFromInt(quantity)
	totalCost := q.Price.Mul(qty)

	tx, err := l.store.BeginTrade(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cash := tx.Cash()
	if totalCost.GreaterThan(cash) {
		return nil, domain.ErrInsufficientFunds
	}

	now := l.now()
	newCash := cash.Sub(totalCost)
	tx.SetCash(newCash)

	txn := &domain.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Symbol:        q.Symbol,
		Side:          domain.SideBuy,
		UnitPrice:     q.Price,
		Quantity:      qty,
		ExecutedAt:    now,
	}
	tx.AppendTransaction(txn)

	holding, ok := tx.Holding(q.Symbol)
	if !ok {
		holding = domain.Holding{
			UserID:    userID,
			Symbol:    q.Symbol,
			Quantity:  qty,
			CostBasis: totalCost,
		}
	} else {
		holding.Quantity = holding.Quantity.Add(qty)
		holding.CostBasis = holding.CostBasis.Add(totalCost)
	}
	holding.UpdatedAt = now
	tx.UpsertHolding(holding)

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &TradeResult{Transaction: txn, Cash: newCash, Holding: &holding}, nil
}

// Sell disposes of quantity shares (possibly fractional) of symbol at the
// current quoted price.
//
// Rejections: domain.ErrNotOwned (no position in symbol),
// domain.ErrInsufficientShares (count exceeds held quantity),
// domain.ErrInvalidQuantity (non-positive count),
// domain.ErrInvalidSymbol / domain.ErrQuoteUnavailable from the quote
// lookup. A rejected sell leaves no observable state change.
func (l *Ledger) Sell(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*TradeResult, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := l.store.BeginTrade(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	holding, ok := tx.Holding(sym)
	if !ok {
		return nil, domain.ErrNotOwned
	}
	if quantity.GreaterThan(holding.Quantity) {
		return nil, domain.ErrInsufficientShares
	}

	q, err := l.quotes.Lookup(ctx, sym)
	if err != nil {
		return nil, err
	}
	saleValue := q.Price.Mul(quantity)

	now := l.now()
	newQty := holding.Quantity.Sub(quantity)

	var result *domain.Holding
	if newQty.IsZero() {
		tx.DeleteHolding(sym)
	} else {
		holding.CostBasis = l.reduceBasis(holding, quantity, saleValue)
		holding.Quantity = newQty
		holding.UpdatedAt = now
		tx.UpsertHolding(holding)
		result = &holding
	}

	newCash := tx.Cash().Add(saleValue)
	tx.SetCash(newCash)

	txn := &domain.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Symbol:        q.Symbol,
		Side:          domain.SideSell,
		UnitPrice:     q.Price,
		Quantity:      quantity,
		ExecutedAt:    now,
	}
	tx.AppendTransaction(txn)

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &TradeResult{Transaction: txn, Cash: newCash, Holding: result}, nil
}

// reduceBasis computes the remaining cost basis after a partial sell, per
// the configured policy.
func (l *Ledger) reduceBasis(h domain.Holding, soldQty, saleValue decimal.Decimal) decimal.Decimal {
	switch l.policy {
	case CashFlow:
		// Reduce by realized sale value. Can drift below zero over partial
		// sells at a gain; kept as-is under this policy.
		return h.CostBasis.Sub(saleValue)
	default:
		reduction := h.CostBasis.Mul(soldQty).Div(h.Quantity).Round(2)
		return h.CostBasis.Sub(reduction)
	}
}
