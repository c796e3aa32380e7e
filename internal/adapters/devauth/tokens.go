package devauth

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.TokenStore = (*TokenStore)(nil)

// TokenStore keeps client token handles in process memory. Handles are lost
// on restart, so every client comes back anonymous.
type TokenStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	now      func() time.Time
}

// NewTokenStore constructs an empty store. clock may be nil.
func NewTokenStore(clock func() time.Time) *TokenStore {
	if clock == nil {
		clock = time.Now
	}
	return &TokenStore{sessions: make(map[string]domainauth.Session), now: clock}
}

func (s *TokenStore) Save(_ context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return errors.New("dev auth: client id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[clientID] = sess
	return nil
}

// Load returns ErrNoSession for unknown or expired handles.
func (s *TokenStore) Load(_ context.Context, clientID string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[clientID]
	if !ok {
		return domainauth.Session{}, ports.ErrNoSession
	}
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, clientID)
		return domainauth.Session{}, ports.ErrNoSession
	}
	return sess, nil
}

func (s *TokenStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientID)
	return nil
}
