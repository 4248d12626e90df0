package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidSymbol      = errors.New("invalid_symbol")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrNotOwned           = errors.New("not_owned")
	ErrInsufficientShares = errors.New("insufficient_shares")
	ErrQuoteUnavailable   = errors.New("quote_unavailable")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StorageError wraps a failure inside the account store. The enclosing trade
// transaction is rolled back and clients see a generic 500; the underlying
// error is only logged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
