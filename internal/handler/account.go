package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/mfreitas/paperbroker/internal/domain"
	"github.com/mfreitas/paperbroker/internal/service"
)

// AccountHandler handles registration, login, and logout.
type AccountHandler struct {
	accountSvc *service.AccountService
	sessionTTL time.Duration
}

// NewAccountHandler creates an AccountHandler. sessionTTL bounds the session
// cookie's lifetime.
func NewAccountHandler(accountSvc *service.AccountService, sessionTTL time.Duration) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, sessionTTL: sessionTTL}
}

// credentialsRequest is the JSON request body for POST /register and
// POST /login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the JSON shape for a user.
type userResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Cash      string `json:"cash"`
	CreatedAt string `json:"created_at"`
}

func buildUserResponse(u *domain.User) userResponse {
	return userResponse{
		UserID:    u.UserID,
		Username:  u.Username,
		Cash:      u.Cash.StringFixed(2),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Register handles POST /register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user, err := h.accountSvc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		mapAccountError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildUserResponse(user))
}

// Login handles POST /login. On success the session token is set as an
// HttpOnly cookie.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	token, user, err := h.accountSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		mapAccountError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	WriteJSON(w, http.StatusOK, buildUserResponse(user))
}

// Logout handles POST /logout. Logout without a session is still a 204.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		h.accountSvc.Logout(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// mapAccountError maps account errors to HTTP responses.
func mapAccountError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUsernameTaken):
		WriteError(w, http.StatusConflict, "username_taken", "That username is already registered")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username and/or password")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
