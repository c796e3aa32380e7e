// Package devauth provides an in-process auth service and record store for local
// development (BACKEND_MODE=memory). It follows the same error taxonomy as the
// remote adapter so the session core cannot tell them apart.
package devauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

const minPasswordLength = 6

// Config controls the dev directory behavior.
type Config struct {
	SessionDuration time.Duration // default 1h when zero
	HashCost        int           // bcrypt cost; default bcrypt.DefaultCost
	Clock           func() time.Time
}

type account struct {
	identity domainauth.Identity
	hash     []byte
}

type grant struct {
	userID    string
	expiresAt time.Time
}

// Directory is the account and token table shared by every dev backend in the
// process. It plays the part of the remote auth service.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]*account // by normalized email
	tokens   map[string]grant
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

// NewDirectory constructs an empty directory.
func NewDirectory(cfg Config) *Directory {
	ttl := cfg.SessionDuration
	if ttl <= 0 {
		ttl = time.Hour
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Directory{
		accounts: make(map[string]*account),
		tokens:   make(map[string]grant),
		ttl:      ttl,
		cost:     cost,
		now:      now,
	}
}

// Register creates an account.
func (d *Directory) Register(in ports.AccountInput) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return errors.New("dev auth: email is required")
	}
	if len(in.Password) < minPasswordLength {
		return fmt.Errorf("dev auth: %w", ports.ErrWeakPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), d.cost)
	if err != nil {
		return fmt.Errorf("dev auth: hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[email]; exists {
		return fmt.Errorf("dev auth: %w", ports.ErrEmailAlreadyRegistered)
	}
	d.accounts[email] = &account{
		identity: domainauth.Identity{
			UserID:      uuid.New().String(),
			Email:       email,
			DisplayName: in.DisplayName,
			Role:        in.Role,
		},
		hash: hash,
	}
	return nil
}

// Issue verifies credentials and grants a new token.
func (d *Directory) Issue(email, password string) (domainauth.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.RLock()
	acct, ok := d.accounts[email]
	d.mu.RUnlock()
	if !ok {
		return domainauth.Session{}, fmt.Errorf("dev auth: %w", ports.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domainauth.Session{}, fmt.Errorf("dev auth: %w", ports.ErrInvalidCredentials)
	}

	token, err := randomString(32)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("dev auth: generate token: %w", err)
	}
	now := d.now()
	g := grant{userID: acct.identity.UserID, expiresAt: now.Add(d.ttl)}

	d.mu.Lock()
	d.tokens[token] = g
	d.mu.Unlock()

	id := acct.identity
	return domainauth.Session{
		Identity:      &id,
		Token:         token,
		ExpiresAt:     g.expiresAt,
		EstablishedAt: now,
	}, nil
}

// Lookup returns the session for a live token.
func (d *Directory) Lookup(token string) (domainauth.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.tokens[token]
	if !ok || !d.now().Before(g.expiresAt) {
		return domainauth.Session{}, ports.ErrNoSession
	}
	for _, acct := range d.accounts {
		if acct.identity.UserID == g.userID {
			id := acct.identity
			return domainauth.Session{Identity: &id, Token: token, ExpiresAt: g.expiresAt}, nil
		}
	}
	return domainauth.Session{}, ports.ErrNoSession
}

// Revoke forgets a token. Unknown tokens are ignored.
func (d *Directory) Revoke(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens, token)
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
