package service

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/observability/notify"
	"github.com/swachh/portal-core/internal/ports"
)

// PortalClientOptions groups dependencies for one portal client.
type PortalClientOptions struct {
	ID             string
	Backend        ports.AuthBackend
	Records        ports.RecordStore
	Sink           ports.NotificationSink
	Routes         RouteTable
	Logger         *slog.Logger
	Metrics        *metrics.Portal
	RestoreTimeout time.Duration
	InboxSize      int
	Clock          func() time.Time
}

// PortalClient bundles the session core for one browser: its own session
// store and the components that read or write it. Clients never share a store.
type PortalClient struct {
	ID          string
	Sessions    *SessionStore
	Auth        *AuthGateway
	Roles       AuthorizationResolver
	Guard       *RouteGuard
	Submissions *SubmissionCoordinator
	Notices     *notify.Inbox

	lastSeen atomic.Int64
	now      func() time.Time
}

// NewPortalClient wires a client. The session store starts restoring immediately.
func NewPortalClient(opts PortalClientOptions) (*PortalClient, error) {
	if opts.ID == "" {
		return nil, errors.New("client id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("client_id", opts.ID)
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	sessions, err := NewSessionStore(SessionStoreOptions{
		Backend:        opts.Backend,
		Logger:         logger,
		Metrics:        opts.Metrics,
		RestoreTimeout: opts.RestoreTimeout,
		Clock:          now,
	})
	if err != nil {
		return nil, err
	}
	gateway, err := NewAuthGateway(AuthGatewayOptions{
		Backend:  opts.Backend,
		Sessions: sessions,
		Logger:   logger,
		Metrics:  opts.Metrics,
		Clock:    now,
	})
	if err != nil {
		sessions.Close()
		return nil, err
	}

	inbox := notify.NewInbox(opts.InboxSize)
	sink := notify.Fanout{inbox}
	if opts.Sink != nil {
		sink = append(sink, opts.Sink)
	}
	submissions, err := NewSubmissionCoordinator(SubmissionOptions{
		Sessions: sessions,
		Records:  opts.Records,
		Sink:     sink,
		Logger:   logger,
		Metrics:  opts.Metrics,
		Clock:    now,
	})
	if err != nil {
		sessions.Close()
		return nil, err
	}

	c := &PortalClient{
		ID:          opts.ID,
		Sessions:    sessions,
		Auth:        gateway,
		Roles:       NewAuthorizationResolver(),
		Guard:       NewRouteGuard(sessions, opts.Routes),
		Submissions: submissions,
		Notices:     inbox,
		now:         now,
	}
	c.Touch()
	return c, nil
}

// Touch records activity for idle eviction.
func (c *PortalClient) Touch() {
	c.lastSeen.Store(c.now().UnixNano())
}

// IdleSince reports the last recorded activity.
func (c *PortalClient) IdleSince() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Close tears the client down and resets its session store.
func (c *PortalClient) Close() {
	c.Sessions.Close()
}
