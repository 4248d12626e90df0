package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is one live login.
type session struct {
	userID    string
	expiresAt time.Time
}

// SessionStore is a thread-safe in-memory session gateway. Tokens are opaque
// UUIDs carried in a cookie; each resolves to a user ID until it expires or
// is destroyed by logout.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a SessionStore whose sessions live for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a session for the user and returns its token.
func (s *SessionStore) Create(userID string) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{
		userID:    userID,
		expiresAt: s.now().Add(s.ttl),
	}
	return token
}

// Resolve returns the user ID for a token, or false if the token is unknown
// or expired.
func (s *SessionStore) Resolve(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || s.now().After(sess.expiresAt) {
		return "", false
	}
	return sess.userID, true
}

// Destroy ends the session for a token. Unknown tokens are a no-op.
func (s *SessionStore) Destroy(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Sweep runs in its own goroutine, removing expired sessions every interval
// until the context is cancelled.
func (s *SessionStore) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge()
		}
	}
}

func (s *SessionStore) purge() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, token)
		}
	}
}
