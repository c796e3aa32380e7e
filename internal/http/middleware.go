package httpx

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/swachh/portal-core/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithClient resolves the browser's portal client and stores it in the request context.
func WithClient(reg *ClientRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := reg.Resolve(w, r)
			if err != nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "client_unavailable",
					Err:     err,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetClientInContext(r.Context(), client)))
		})
	}
}

// RequireSession lets the request through only when the client's route guard
// allows a session-protected route. It waits for the initial restore, bounded
// by the request context, so a returning user is not bounced to login.
// API requests get 401 JSON; browser requests are redirected.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, ok := ClientFromContext(r.Context())
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusInternalServerError,
					ErrCode: "client_missing",
					Err:     errors.New("portal client not resolved"),
				})
				return
			}
			if err := client.Sessions.WaitRestored(r.Context()); err != nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "session_restoring",
					Err:     errors.New("session is still being restored"),
				})
				return
			}

			verdict := client.Guard.Evaluate(service.RequirementSession)
			if verdict.State == service.VerdictAllowed {
				next.ServeHTTP(w, r)
				return
			}
			if isBrowserRequest(r) {
				redirectToLogin(w, r, verdict.Redirect)
				return
			}
			WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":       "authentication_required",
				"message":     "authentication required",
				"redirect_to": verdict.Redirect,
			})
		})
	}
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path prefix - API routes start with /api/
// 2. Accept header - browsers typically accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// redirectToLogin redirects browser requests to the login page with the current URL as redirect_uri.
func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	if loginPath == "" {
		loginPath = service.LoginPath
	}
	u := url.URL{Path: loginPath}
	q := url.Values{}
	q.Set("redirect_uri", safeRedirectPath(r.URL.RequestURI()))
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// SignInLimiter throttles sign-in attempts per remote address.
type SignInLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	calls    int
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewSignInLimiter allows perSecond sustained attempts with the given burst.
func NewSignInLimiter(perSecond float64, burst int, idleTTL time.Duration) *SignInLimiter {
	if burst < 1 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SignInLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether key may attempt a sign-in now.
func (l *SignInLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	l.calls++
	if l.calls%256 == 0 {
		for k, e := range l.limiters {
			if now.Sub(e.seen) > l.idleTTL {
				delete(l.limiters, k)
			}
		}
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429. It keys on the remote
// address and runs before WithClient, so rejected requests never create a
// portal client and dropping the cookie does not reset the budget.
func (l *SignInLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(remoteKey(r)) {
			w.Header().Set("Retry-After", "2")
			WriteError(w, ErrorParams{
				Code:    http.StatusTooManyRequests,
				ErrCode: "rate_limited",
				Err:     errors.New("too many sign-in attempts; please wait and try again"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteKey is the peer host without its port.
func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
