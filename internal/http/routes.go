package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Clients *ClientRegistry
	// Optional: sign-in throttling. Nil disables it.
	SignInLimiter *SignInLimiter
	// Optional: Prometheus exposition handler mounted at /metrics.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", healthHandler(services.Clients))
	mux.Handle("HEAD /healthz", healthHandler(services.Clients))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	withClient := WithClient(services.Clients)
	guarded := func(h http.HandlerFunc) http.Handler {
		return withClient(RequireSession()(h))
	}

	authHandlers := &AuthHandlers{Logger: logger}
	registerAuthRoutes(mux, authHandlers, withClient, services.SignInLimiter)

	portal := &PortalHandlers{Logger: logger}
	mux.Handle("POST /api/complaints", withClient(http.HandlerFunc(portal.SubmitComplaint)))
	mux.Handle("GET /api/events", withClient(http.HandlerFunc(portal.Events)))
	mux.Handle("POST /api/events", withClient(http.HandlerFunc(portal.SubmitEvent)))
	mux.Handle("POST /api/events/{id}/registrations", withClient(http.HandlerFunc(portal.RegisterForEvent)))
	mux.Handle("GET /api/guard", withClient(http.HandlerFunc(portal.Guard)))
	mux.Handle("GET /api/notices", withClient(http.HandlerFunc(portal.Notices)))
	mux.Handle("GET /api/me/complaints", guarded(portal.MyComplaints))
	mux.Handle("GET /api/me/registrations", guarded(portal.MyRegistrations))
	mux.Handle("GET /api/me/summary", guarded(portal.DashboardSummary))

	return Recover(logger)(Logging(logger)(mux))
}

func registerAuthRoutes(
	mux *http.ServeMux,
	h *AuthHandlers,
	withClient func(http.Handler) http.Handler,
	limiter *SignInLimiter,
) {
	login := withClient(http.HandlerFunc(h.Login))
	if limiter != nil {
		login = limiter.Middleware(login)
	}
	mux.Handle("POST /auth/login", login)
	mux.Handle("POST /auth/register", withClient(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/logout", withClient(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/status", withClient(http.HandlerFunc(h.Status)))
}
