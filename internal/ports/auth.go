// Package ports defines interfaces (hexagonal ports) for the remote auth/data service
// and the presentation collaborators. Implementations live in internal/adapters and
// internal/data; orchestration in internal/service.
package ports

import (
	"context"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
)

// AccountInput carries the fields recorded when creating an account.
// Role is stored as account metadata; the remote service does not verify it.
type AccountInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        domainauth.Role
}

// AuthBackend is the remote auth collaborator as seen by one portal client.
// Each portal client owns its own AuthBackend instance, which tracks that
// client's token handle.
type AuthBackend interface {
	// RestoreSession returns the persisted session, or nil when there is none.
	RestoreSession(ctx context.Context) (*domainauth.Session, error)

	// OnSessionChange registers fn for sign-in/sign-out events from any cause,
	// including this client's own calls. The returned func unregisters it.
	OnSessionChange(fn func(domainauth.SessionEvent)) (unsubscribe func())

	// Authenticate exchanges credentials for a session (ErrInvalidCredentials on rejection).
	Authenticate(ctx context.Context, email, password string) (domainauth.Session, error)

	// CreateAccount registers an account (ErrEmailAlreadyRegistered, ErrWeakPassword).
	CreateAccount(ctx context.Context, in AccountInput) error

	// InvalidateSession revokes the current token. Best effort; ErrTransport on failure.
	InvalidateSession(ctx context.Context) error

	// DiscardSession revokes a session that lost to a later transition. If the
	// persisted handle still holds discarded's token it is rewritten to current,
	// or removed when current is not authenticated. No event is emitted.
	DiscardSession(ctx context.Context, discarded, current domainauth.Session) error
}

// BackendFactory builds the AuthBackend for a portal client id.
type BackendFactory func(clientID string) AuthBackend

// TokenStore persists a portal client's session handle across process restarts.
type TokenStore interface {
	Save(ctx context.Context, clientID string, sess domainauth.Session) error
	Load(ctx context.Context, clientID string) (domainauth.Session, error)
	Delete(ctx context.Context, clientID string) error
}

// SessionBroadcaster carries session events between portal processes serving
// the same portal client. Publish never echoes back to the publishing process.
type SessionBroadcaster interface {
	Publish(ctx context.Context, clientID string, ev domainauth.SessionEvent) error
	Listen(clientID string, fn func(domainauth.SessionEvent)) (stop func())
}
