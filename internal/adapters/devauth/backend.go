package devauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/swachh/portal-core/internal/adapters/sessionfeed"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.AuthBackend = (*Backend)(nil)

// Backend is one portal client's view of the Directory. The client's token
// handle is persisted in Tokens under the client id.
type Backend struct {
	dir      *Directory
	tokens   ports.TokenStore
	clientID string
	logger   *slog.Logger
	feed     *sessionfeed.Feed
}

// NewBackendFactory returns a factory building dev backends over dir.
// broadcaster may be nil.
func NewBackendFactory(dir *Directory, tokens ports.TokenStore, broadcaster ports.SessionBroadcaster, logger *slog.Logger) ports.BackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(clientID string) ports.AuthBackend {
		l := logger.With("component", "devauth", "client_id", clientID)
		return &Backend{
			dir:      dir,
			tokens:   tokens,
			clientID: clientID,
			logger:   l,
			feed:     sessionfeed.New(clientID, broadcaster, l),
		}
	}
}

func (b *Backend) RestoreSession(ctx context.Context) (*domainauth.Session, error) {
	stored, err := b.tokens.Load(ctx, b.clientID)
	if errors.Is(err, ports.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	sess, err := b.dir.Lookup(stored.Token)
	if errors.Is(err, ports.ErrNoSession) {
		if delErr := b.tokens.Delete(ctx, b.clientID); delErr != nil {
			b.logger.WarnContext(ctx, "drop stale token", "error", delErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (b *Backend) OnSessionChange(fn func(domainauth.SessionEvent)) func() {
	return b.feed.Subscribe(fn)
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (domainauth.Session, error) {
	sess, err := b.dir.Issue(email, password)
	if err != nil {
		return domainauth.Session{}, err
	}
	if err := b.tokens.Save(ctx, b.clientID, sess); err != nil {
		b.dir.Revoke(sess.Token)
		return domainauth.Session{}, fmt.Errorf("persist token: %w", errors.Join(ports.ErrTransport, err))
	}
	b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedIn, Session: &sess})
	return sess, nil
}

func (b *Backend) CreateAccount(_ context.Context, in ports.AccountInput) error {
	return b.dir.Register(in)
}

func (b *Backend) InvalidateSession(ctx context.Context) error {
	stored, err := b.tokens.Load(ctx, b.clientID)
	switch {
	case errors.Is(err, ports.ErrNoSession):
	case err != nil:
		return fmt.Errorf("load token: %w", errors.Join(ports.ErrTransport, err))
	default:
		b.dir.Revoke(stored.Token)
	}
	if err := b.tokens.Delete(ctx, b.clientID); err != nil {
		return fmt.Errorf("delete token: %w", errors.Join(ports.ErrTransport, err))
	}
	b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedOut})
	return nil
}

func (b *Backend) DiscardSession(ctx context.Context, discarded, current domainauth.Session) error {
	b.dir.Revoke(discarded.Token)
	stored, err := b.tokens.Load(ctx, b.clientID)
	switch {
	case errors.Is(err, ports.ErrNoSession):
		return nil
	case err != nil:
		return fmt.Errorf("load token: %w", errors.Join(ports.ErrTransport, err))
	case stored.Token != discarded.Token:
		return nil
	}
	if current.Authenticated() && current.Token != "" {
		err = b.tokens.Save(ctx, b.clientID, current)
	} else {
		err = b.tokens.Delete(ctx, b.clientID)
	}
	if err != nil {
		return fmt.Errorf("rewrite token: %w", errors.Join(ports.ErrTransport, err))
	}
	return nil
}
