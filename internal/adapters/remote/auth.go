package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/swachh/portal-core/internal/adapters/sessionfeed"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

// refreshSkew is how close to expiry a restored token is refreshed instead of reused.
const refreshSkew = time.Minute

var _ ports.AuthBackend = (*Backend)(nil)

type userMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type remoteUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         remoteUser `json:"user"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type signupRequest struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Data     userMetadata `json:"data"`
}

// Backend is one portal client's view of the remote auth API.
type Backend struct {
	svc      *Service
	tokens   ports.TokenStore
	clientID string
	logger   *slog.Logger
	feed     *sessionfeed.Feed
	now      func() time.Time

	mu     sync.RWMutex
	bearer string
}

// BackendOptions groups per-client collaborators.
type BackendOptions struct {
	ClientID    string
	Tokens      ports.TokenStore
	Broadcaster ports.SessionBroadcaster
	Clock       func() time.Time
}

// NewBackend builds the remote auth backend for one portal client.
func (s *Service) NewBackend(opts BackendOptions) *Backend {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	l := s.logger.With("client_id", opts.ClientID)
	return &Backend{
		svc:      s,
		tokens:   opts.Tokens,
		clientID: opts.ClientID,
		logger:   l,
		feed:     sessionfeed.New(opts.ClientID, opts.Broadcaster, l),
		now:      now,
	}
}

// AccessToken returns the bearer for data requests, or "" when signed out.
func (b *Backend) AccessToken() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bearer
}

func (b *Backend) setBearer(token string) {
	b.mu.Lock()
	b.bearer = token
	b.mu.Unlock()
}

func (b *Backend) RestoreSession(ctx context.Context) (*domainauth.Session, error) {
	stored, err := b.tokens.Load(ctx, b.clientID)
	if errors.Is(err, ports.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	if stored.RefreshToken != "" && !stored.ExpiresAt.IsZero() && b.now().Add(refreshSkew).After(stored.ExpiresAt) {
		return b.refresh(ctx, stored.RefreshToken)
	}

	var user remoteUser
	err = b.svc.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", bearer: stored.Token}, &user)
	if errors.Is(err, ports.ErrNoSession) {
		b.dropToken(ctx)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored.Identity = identityFrom(user)
	b.setBearer(stored.Token)
	return &stored, nil
}

func (b *Backend) refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	var resp tokenResponse
	err := b.svc.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   refreshGrant{RefreshToken: refreshToken},
	}, &resp)
	if err != nil {
		if errors.Is(err, ports.ErrTransport) {
			return nil, err
		}
		b.logger.InfoContext(ctx, "stored refresh token rejected", "error", err)
		b.dropToken(ctx)
		return nil, nil
	}
	sess := b.sessionFrom(resp)
	if err := b.tokens.Save(ctx, b.clientID, sess); err != nil {
		b.logger.WarnContext(ctx, "persist refreshed token", "error", err)
	}
	b.setBearer(sess.Token)
	b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventTokenRefreshed, Session: &sess})
	return &sess, nil
}

func (b *Backend) OnSessionChange(fn func(domainauth.SessionEvent)) func() {
	return b.feed.Subscribe(fn)
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (domainauth.Session, error) {
	var resp tokenResponse
	err := b.svc.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   passwordGrant{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" {
		return domainauth.Session{}, errors.New("sign in: response carried no access token")
	}

	sess := b.sessionFrom(resp)
	if err := b.tokens.Save(ctx, b.clientID, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("persist token: %w", errors.Join(ports.ErrTransport, err))
	}
	b.setBearer(sess.Token)
	b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedIn, Session: &sess})
	return sess, nil
}

func (b *Backend) CreateAccount(ctx context.Context, in ports.AccountInput) error {
	err := b.svc.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: signupRequest{
			Email:    in.Email,
			Password: in.Password,
			Data:     userMetadata{FullName: in.DisplayName, Role: string(in.Role)},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	return nil
}

// InvalidateSession drops the local token first, then revokes it remotely.
func (b *Backend) InvalidateSession(ctx context.Context) error {
	stored, err := b.tokens.Load(ctx, b.clientID)
	switch {
	case errors.Is(err, ports.ErrNoSession):
		b.setBearer("")
		b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedOut})
		return nil
	case err != nil:
		return fmt.Errorf("load token: %w", errors.Join(ports.ErrTransport, err))
	}

	b.setBearer("")
	b.dropToken(ctx)
	err = b.svc.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", bearer: stored.Token}, nil)
	if err != nil && !errors.Is(err, ports.ErrNoSession) {
		return fmt.Errorf("sign out: %w", err)
	}
	b.feed.Emit(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedOut})
	return nil
}

// DiscardSession revokes only the discarded token (scope=local keeps the
// user's other sessions alive), then points the bearer and the persisted
// handle back at current.
func (b *Backend) DiscardSession(ctx context.Context, discarded, current domainauth.Session) error {
	next := ""
	if current.Authenticated() {
		next = current.Token
	}
	b.mu.Lock()
	if b.bearer == discarded.Token {
		b.bearer = next
	}
	b.mu.Unlock()

	var rewriteErr error
	stored, err := b.tokens.Load(ctx, b.clientID)
	switch {
	case errors.Is(err, ports.ErrNoSession):
	case err != nil:
		rewriteErr = fmt.Errorf("load token: %w", errors.Join(ports.ErrTransport, err))
	case stored.Token != discarded.Token:
	case next != "":
		if err = b.tokens.Save(ctx, b.clientID, current); err != nil {
			rewriteErr = fmt.Errorf("persist token: %w", errors.Join(ports.ErrTransport, err))
		}
	default:
		if err = b.tokens.Delete(ctx, b.clientID); err != nil {
			rewriteErr = fmt.Errorf("delete token: %w", errors.Join(ports.ErrTransport, err))
		}
	}

	if discarded.Token == "" {
		return rewriteErr
	}
	err = b.svc.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		query:  url.Values{"scope": {"local"}},
		bearer: discarded.Token,
	}, nil)
	if err != nil && !errors.Is(err, ports.ErrNoSession) {
		return errors.Join(rewriteErr, fmt.Errorf("revoke discarded session: %w", err))
	}
	return rewriteErr
}

func (b *Backend) dropToken(ctx context.Context) {
	if err := b.tokens.Delete(ctx, b.clientID); err != nil {
		b.logger.WarnContext(ctx, "drop stored token", "error", err)
	}
}

func (b *Backend) sessionFrom(resp tokenResponse) domainauth.Session {
	now := b.now()
	return domainauth.Session{
		Identity:      identityFrom(resp.User),
		Token:         resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		ExpiresAt:     expiryOf(resp, now),
		EstablishedAt: now,
	}
}

func identityFrom(u remoteUser) *domainauth.Identity {
	role, _ := domainauth.ParseRole(u.UserMetadata.Role)
	return &domainauth.Identity{
		UserID:      u.ID,
		Email:       strings.ToLower(u.Email),
		DisplayName: u.UserMetadata.FullName,
		Role:        role,
	}
}

// expiryOf prefers the token's own exp claim. The token is not verified here;
// the remote service verifies it on every request.
func expiryOf(resp tokenResponse, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	switch {
	case resp.ExpiresAt > 0:
		return time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		return time.Time{}
	}
}
