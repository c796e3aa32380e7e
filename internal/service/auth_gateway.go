package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/ports"
)

// MinPasswordLength is the shortest password accepted by sign-up.
const MinPasswordLength = 6

// AuthOutcome classifies the result of an auth gateway operation.
type AuthOutcome string

const (
	OutcomeSignedIn               AuthOutcome = "signed_in"
	OutcomeSignedUp               AuthOutcome = "signed_up"
	OutcomeSignedOut              AuthOutcome = "signed_out"
	OutcomeInvalidCredentials     AuthOutcome = "invalid_credentials"
	OutcomeEmailAlreadyRegistered AuthOutcome = "email_already_registered"
	OutcomeWeakPassword           AuthOutcome = "weak_password"
	OutcomeInvalidInput           AuthOutcome = "invalid_input"
	OutcomeTransportError         AuthOutcome = "transport_error"
	OutcomeSuperseded             AuthOutcome = "superseded"
	OutcomeUnknown                AuthOutcome = "unknown"
)

// AuthResult is the settled result of a gateway operation. Err carries the
// underlying cause for failures, and the residual remote error for a sign-out
// that cleared the local session but could not revoke the remote token.
type AuthResult struct {
	Outcome AuthOutcome
	Session domainauth.Session
	Message string
	Err     error
}

// OK reports whether the operation achieved its goal.
func (r AuthResult) OK() bool {
	switch r.Outcome {
	case OutcomeSignedIn, OutcomeSignedUp, OutcomeSignedOut:
		return true
	default:
		return false
	}
}

// SignInInput groups sign-in form fields.
type SignInInput struct {
	Email        string
	Password     string
	SelectedRole string
}

// SignUpInput groups registration form fields.
type SignUpInput struct {
	FirstName       string
	MiddleName      string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
}

// AuthGatewayOptions groups dependencies for AuthGateway.
type AuthGatewayOptions struct {
	Backend  ports.AuthBackend
	Sessions *SessionStore
	Logger   *slog.Logger
	Metrics  *metrics.Portal
	Clock    func() time.Time
}

// AuthGateway is the only writer of authentication state. Operations never
// return an error; every failure is classified into AuthResult.
type AuthGateway struct {
	backend  ports.AuthBackend
	sessions *SessionStore
	logger   *slog.Logger
	metrics  *metrics.Portal
	now      func() time.Time
}

// NewAuthGateway constructs a new AuthGateway.
func NewAuthGateway(opts AuthGatewayOptions) (*AuthGateway, error) {
	if opts.Backend == nil {
		return nil, errors.New("auth backend is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &AuthGateway{
		backend:  opts.Backend,
		sessions: opts.Sessions,
		logger:   logger.With("component", "auth_gateway"),
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

// SignIn exchanges credentials for a session. On success the session is
// committed to the store before SignIn returns. When a transition dispatched
// later has already settled, the new grant is revoked and the result is
// OutcomeSuperseded carrying the session that won.
func (g *AuthGateway) SignIn(ctx context.Context, in SignInInput) AuthResult {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return g.finish("sign_in", AuthResult{
			Outcome: OutcomeInvalidInput,
			Message: "email and password are required",
		})
	}
	hint, _ := domainauth.ParseRole(in.SelectedRole)

	ticket := g.sessions.Begin()
	sess, err := g.backend.Authenticate(ctx, email, in.Password)
	if err != nil {
		g.sessions.Abandon(ticket)
		return g.finish("sign_in", classifyAuthError(err))
	}

	sess.SelectedRole = hint
	if sess.EstablishedAt.IsZero() {
		sess.EstablishedAt = g.now()
	}
	committed, applied := g.sessions.Commit(ticket, sess)
	if !applied {
		g.discard(ctx, sess, committed)
		return g.finish("sign_in", AuthResult{
			Outcome: OutcomeSuperseded,
			Session: committed,
			Message: "A later sign-in or sign-out took effect first. Please try again.",
		})
	}
	g.logger.InfoContext(ctx, "signed in", "user_id", sess.UserID())
	return g.finish("sign_in", AuthResult{Outcome: OutcomeSignedIn, Session: committed})
}

// SignUp creates an account. It never changes the session store; the caller
// is expected to route to sign-in afterwards.
func (g *AuthGateway) SignUp(ctx context.Context, in SignUpInput) AuthResult {
	if res, ok := validateSignUp(in); !ok {
		return g.finish("sign_up", res)
	}
	role, ok := domainauth.ParseRole(in.Role)
	if !ok {
		role = domainauth.RoleCitizen
	}

	err := g.backend.CreateAccount(ctx, ports.AccountInput{
		Email:       normalizeEmail(in.Email),
		Password:    in.Password,
		DisplayName: displayName(in.FirstName, in.MiddleName, in.LastName),
		Role:        role,
	})
	if err != nil {
		return g.finish("sign_up", classifyAuthError(err))
	}
	return g.finish("sign_up", AuthResult{
		Outcome: OutcomeSignedUp,
		Session: g.sessions.Current(),
		Message: "Account created. Please sign in.",
	})
}

// SignOut revokes the remote token and always leaves the store anonymous.
// A failed revocation is reported in Err alongside OutcomeSignedOut.
func (g *AuthGateway) SignOut(ctx context.Context) AuthResult {
	ticket := g.sessions.Begin()
	err := g.backend.InvalidateSession(ctx)

	committed, applied := g.sessions.Commit(ticket, domainauth.Anonymous(g.now()))
	if !applied {
		committed = domainauth.Anonymous(g.now())
	}
	res := AuthResult{Outcome: OutcomeSignedOut, Session: committed}
	if err != nil {
		g.logger.WarnContext(ctx, "remote sign-out failed; local session cleared", "error", err)
		res.Err = err
		res.Message = "Signed out locally. The remote session could not be revoked."
	}
	return g.finish("sign_out", res)
}

// discard revokes a grant the store refused so the persisted handle matches
// the committed session. It outlives the caller's context.
func (g *AuthGateway) discard(ctx context.Context, lost, committed domainauth.Session) {
	if err := g.backend.DiscardSession(context.WithoutCancel(ctx), lost, committed); err != nil {
		g.logger.WarnContext(ctx, "discard superseded sign-in failed", "user_id", lost.UserID(), "error", err)
		return
	}
	g.logger.InfoContext(ctx, "superseded sign-in discarded", "user_id", lost.UserID())
}

func (g *AuthGateway) finish(op string, res AuthResult) AuthResult {
	g.metrics.RecordAuth(op, string(res.Outcome))
	if !res.OK() {
		g.logger.Debug("auth operation rejected", "operation", op, "outcome", res.Outcome, "error", res.Err)
	}
	return res
}

func classifyAuthError(err error) AuthResult {
	switch {
	case errors.Is(err, ports.ErrInvalidCredentials):
		return AuthResult{Outcome: OutcomeInvalidCredentials, Message: "Invalid email or password.", Err: err}
	case errors.Is(err, ports.ErrEmailAlreadyRegistered):
		return AuthResult{Outcome: OutcomeEmailAlreadyRegistered, Message: "This email is already registered. Please sign in instead.", Err: err}
	case errors.Is(err, ports.ErrWeakPassword):
		return AuthResult{Outcome: OutcomeWeakPassword, Message: "Password must be at least 6 characters.", Err: err}
	case errors.Is(err, ports.ErrTransport):
		return AuthResult{Outcome: OutcomeTransportError, Message: "The service is unavailable. Please try again.", Err: err}
	default:
		return AuthResult{Outcome: OutcomeUnknown, Message: "Something went wrong. Please try again.", Err: err}
	}
}

func validateSignUp(in SignUpInput) (AuthResult, bool) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return AuthResult{Outcome: OutcomeInvalidInput, Message: "email is required"}, false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return AuthResult{Outcome: OutcomeInvalidInput, Message: "email is not valid"}, false
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return AuthResult{Outcome: OutcomeInvalidInput, Message: "first name is required"}, false
	}
	if in.Password != in.ConfirmPassword {
		return AuthResult{Outcome: OutcomeInvalidInput, Message: "Passwords do not match."}, false
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return AuthResult{Outcome: OutcomeWeakPassword, Message: "Password must be at least 6 characters."}, false
	}
	if strings.TrimSpace(in.Role) != "" {
		if _, ok := domainauth.ParseRole(in.Role); !ok {
			return AuthResult{Outcome: OutcomeInvalidInput, Message: "role is not supported"}, false
		}
	}
	return AuthResult{}, true
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func displayName(names ...string) string {
	parts := make([]string, 0, len(names))
	for _, p := range names {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
