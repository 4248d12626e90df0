package service

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/mfreitas/paperbroker/internal/auth"
	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/store"
	"github.com/shopspring/decimal"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

const minPasswordLength = 8

// AccountService handles registration, login, and logout.
type AccountService struct {
	store       store.AccountStore
	sessions    *auth.SessionStore
	initialCash decimal.Decimal
}

// NewAccountService creates an AccountService. New users start with
// initialCash of simulated money.
func NewAccountService(st store.AccountStore, sessions *auth.SessionStore, initialCash decimal.Decimal) *AccountService {
	return &AccountService{
		store:       st,
		sessions:    sessions,
		initialCash: initialCash,
	}
}

// Register validates the credentials, hashes the password, and creates the
// user with the configured starting cash.
func (s *AccountService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if !usernameRegex.MatchString(username) {
		return nil, &domain.ValidationError{
			Message: "username must match ^[a-zA-Z0-9_-]{3,32}$",
		}
	}
	if len(password) < minPasswordLength {
		return nil, &domain.ValidationError{
			Message: "password must be at least 8 characters",
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		UserID:       uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Cash:         s.initialCash,
		CreatedAt:    time.Now(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and starts a session. A missing user and a
// wrong password both return domain.ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, domain.ErrInvalidCredentials
	}

	token := s.sessions.Create(user.UserID)
	return token, user, nil
}

// Logout destroys the session for the token.
func (s *AccountService) Logout(token string) {
	s.sessions.Destroy(token)
}
