package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend = (*MockAuthBackend)(nil)
	_ ports.TokenStore  = (*MemoryTokenStore)(nil)
)

// MockAuthBackend simulates the remote auth service for one portal client.
// Unset funcs fall back to deterministic defaults. When Echo is true the
// backend emits signed_in/signed_out on its own successful calls, like the
// real client library does.
type MockAuthBackend struct {
	RestoreFunc      func(ctx context.Context) (*domainauth.Session, error)
	AuthenticateFunc func(ctx context.Context, email, password string) (domainauth.Session, error)
	CreateFunc       func(ctx context.Context, in ports.AccountInput) error
	InvalidateFunc   func(ctx context.Context) error
	DiscardFunc      func(ctx context.Context, discarded, current domainauth.Session) error

	Echo        bool
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	listeners map[int]func(domainauth.SessionEvent)
	nextID    int
	calls     map[string]int
	discarded []string
}

// NewMockAuthBackend creates a MockAuthBackend with sensible defaults.
func NewMockAuthBackend() *MockAuthBackend {
	return &MockAuthBackend{
		DefaultUser: domainauth.Identity{
			UserID:      "mock-user-1",
			Email:       "mock.user@example.com",
			DisplayName: "Mock User",
			Role:        domainauth.RoleCitizen,
		},
	}
}

func (m *MockAuthBackend) RestoreSession(ctx context.Context) (*domainauth.Session, error) {
	m.count("restore")
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx)
	}
	return nil, nil
}

func (m *MockAuthBackend) OnSessionChange(fn func(domainauth.SessionEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners == nil {
		m.listeners = make(map[int]func(domainauth.SessionEvent))
	}
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *MockAuthBackend) Authenticate(ctx context.Context, email, password string) (domainauth.Session, error) {
	m.count("authenticate")
	var (
		sess domainauth.Session
		err  error
	)
	if m.AuthenticateFunc != nil {
		sess, err = m.AuthenticateFunc(ctx, email, password)
	} else {
		sess = m.SessionFor(email)
	}
	if err == nil && m.Echo {
		s := sess
		m.Emit(domainauth.SessionEvent{Kind: domainauth.EventSignedIn, Session: &s})
	}
	return sess, err
}

func (m *MockAuthBackend) CreateAccount(ctx context.Context, in ports.AccountInput) error {
	m.count("create")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return nil
}

func (m *MockAuthBackend) InvalidateSession(ctx context.Context) error {
	m.count("invalidate")
	var err error
	if m.InvalidateFunc != nil {
		err = m.InvalidateFunc(ctx)
	}
	if err == nil && m.Echo {
		m.Emit(domainauth.SessionEvent{Kind: domainauth.EventSignedOut})
	}
	return err
}

// DiscardSession records the discarded token and never emits.
func (m *MockAuthBackend) DiscardSession(ctx context.Context, discarded, current domainauth.Session) error {
	m.count("discard")
	m.mu.Lock()
	m.discarded = append(m.discarded, discarded.Token)
	m.mu.Unlock()
	if m.DiscardFunc != nil {
		return m.DiscardFunc(ctx, discarded, current)
	}
	return nil
}

// Discarded returns the tokens passed to DiscardSession, in call order.
func (m *MockAuthBackend) Discarded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.discarded...)
}

// SessionFor returns an authenticated session for the default user with email.
func (m *MockAuthBackend) SessionFor(email string) domainauth.Session {
	user := m.DefaultUser
	if user.UserID == "" {
		user = domainauth.Identity{UserID: "mock-user-1", Role: domainauth.RoleCitizen}
	}
	if email != "" {
		user.Email = email
	}
	return domainauth.Session{
		Identity:  &user,
		Token:     "token-" + user.UserID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// Emit delivers ev to every registered listener synchronously.
func (m *MockAuthBackend) Emit(ev domainauth.SessionEvent) {
	m.mu.Lock()
	fns := make([]func(domainauth.SessionEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Calls returns how many times the named operation ran
// (restore, authenticate, create, invalidate, discard).
func (m *MockAuthBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Listeners returns the number of registered change listeners.
func (m *MockAuthBackend) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *MockAuthBackend) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Gate blocks a faked remote call until released, so tests can control the
// order in which concurrent calls settle.
type Gate struct {
	entered chan struct{}
	release chan struct{}
}

// NewGate returns a closed-over pair of channels.
func NewGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Wait marks the call as entered and blocks until Release or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	close(g.entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entered is closed once the gated call has started.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets the gated call return.
func (g *Gate) Release() { close(g.release) }

// MemoryTokenStore is an in-memory token store for unit tests.
type MemoryTokenStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemoryTokenStore) Save(_ context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[clientID] = sess
	return nil
}

func (m *MemoryTokenStore) Load(_ context.Context, clientID string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[clientID]
	if !ok {
		return domainauth.Session{}, ports.ErrNoSession
	}
	return sess, nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, clientID)
	return nil
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}
