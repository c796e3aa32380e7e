package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/service"
)

// ClientCookieName identifies the browser's portal client.
const ClientCookieName = "portal_client"

const clientCookieMaxAge = 30 * 24 * 60 * 60

// ClientFactory builds the portal client for a client id.
type ClientFactory func(id string) (*service.PortalClient, error)

// ClientRegistryOptions groups dependencies for ClientRegistry.
type ClientRegistryOptions struct {
	Factory       ClientFactory
	IdleTTL       time.Duration
	CookieDomain  string
	SecureCookies bool
	Metrics       *metrics.Portal
	Logger        *slog.Logger
	Clock         func() time.Time
}

// ClientRegistry owns one PortalClient per browser, keyed by the portal_client
// cookie. A returning browser whose client was evicted gets a fresh client with
// the same id, so a persisted token can be restored.
type ClientRegistry struct {
	factory      ClientFactory
	idleTTL      time.Duration
	cookieDomain string
	secure       bool
	metrics      *metrics.Portal
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	clients map[string]*service.PortalClient
	closed  bool
	create  singleflight.Group
}

// ErrRegistryClosed is returned after Close.
var ErrRegistryClosed = errors.New("client registry closed")

// NewClientRegistry constructs a registry.
func NewClientRegistry(opts ClientRegistryOptions) (*ClientRegistry, error) {
	if opts.Factory == nil {
		return nil, errors.New("client factory is required")
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &ClientRegistry{
		factory:      opts.Factory,
		idleTTL:      ttl,
		cookieDomain: opts.CookieDomain,
		secure:       opts.SecureCookies,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "client_registry"),
		now:          now,
		clients:      make(map[string]*service.PortalClient),
	}, nil
}

// Resolve returns the client for the request, creating it (and setting the
// cookie) when needed. Activity is recorded on every call.
func (reg *ClientRegistry) Resolve(w http.ResponseWriter, r *http.Request) (*service.PortalClient, error) {
	id := ""
	if c, err := r.Cookie(ClientCookieName); err == nil {
		if parsed, parseErr := uuid.Parse(c.Value); parseErr == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.New().String()
		reg.setCookie(w, r, id)
	}

	client, err := reg.get(id)
	if err != nil {
		return nil, err
	}
	client.Touch()
	return client, nil
}

// Lookup returns an existing client without creating one.
func (reg *ClientRegistry) Lookup(id string) (*service.PortalClient, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.clients[id]
	return c, ok
}

// Len reports the number of live clients.
func (reg *ClientRegistry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.clients)
}

func (reg *ClientRegistry) get(id string) (*service.PortalClient, error) {
	if c, ok := reg.Lookup(id); ok {
		return c, nil
	}
	v, err, _ := reg.create.Do(id, func() (any, error) {
		if c, ok := reg.Lookup(id); ok {
			return c, nil
		}
		c, err := reg.factory(id)
		if err != nil {
			return nil, err
		}
		reg.mu.Lock()
		if reg.closed {
			reg.mu.Unlock()
			c.Close()
			return nil, ErrRegistryClosed
		}
		reg.clients[id] = c
		n := len(reg.clients)
		reg.mu.Unlock()
		reg.metrics.SetActiveClients(n)
		reg.logger.Debug("portal client created", "client_id", id)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	client, _ := v.(*service.PortalClient)
	return client, nil
}

// Sweep closes clients idle for longer than the TTL and returns how many were evicted.
func (reg *ClientRegistry) Sweep() int {
	cutoff := reg.now().Add(-reg.idleTTL)
	var idle []*service.PortalClient

	reg.mu.Lock()
	for id, c := range reg.clients {
		if c.IdleSince().Before(cutoff) {
			idle = append(idle, c)
			delete(reg.clients, id)
		}
	}
	n := len(reg.clients)
	reg.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		reg.metrics.SetActiveClients(n)
		reg.logger.Info("evicted idle portal clients", "count", len(idle), "remaining", n)
	}
	return len(idle)
}

// Run sweeps idle clients until ctx is done, then closes every client.
func (reg *ClientRegistry) Run(ctx context.Context) error {
	interval := max(reg.idleTTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			reg.Close()
			return nil
		case <-ticker.C:
			reg.Sweep()
		}
	}
}

// Close closes every client. Later Resolve calls fail with ErrRegistryClosed.
func (reg *ClientRegistry) Close() {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return
	}
	reg.closed = true
	clients := reg.clients
	reg.clients = map[string]*service.PortalClient{}
	reg.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	reg.metrics.SetActiveClients(0)
}

func (reg *ClientRegistry) setCookie(w http.ResponseWriter, r *http.Request, id string) {
	isSecure := reg.secure || r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		Domain:   reg.cookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   clientCookieMaxAge,
	})
}
