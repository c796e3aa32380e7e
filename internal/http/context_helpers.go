package httpx

import (
	"context"

	"github.com/swachh/portal-core/internal/service"
)

// clientKey is an unexported context key type to avoid collisions across packages.
type clientKey struct{}

// SetClientInContext returns a child context that carries the given portal client.
// If client is nil, the original ctx is returned unchanged.
func SetClientInContext(ctx context.Context, client *service.PortalClient) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the portal client from context and a boolean indicating presence.
func ClientFromContext(ctx context.Context) (*service.PortalClient, bool) {
	if c, ok := ctx.Value(clientKey{}).(*service.PortalClient); ok && c != nil {
		return c, true
	}
	return nil, false
}
