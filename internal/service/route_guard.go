package service

import (
	"strings"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
)

// Requirement is the access rule attached to a route.
type Requirement int

const (
	// RequirementPublic routes are always reachable.
	RequirementPublic Requirement = iota
	// RequirementSession routes need an identity.
	RequirementSession
	// RequirementAuthOnly routes (login, register) are for visitors without an identity.
	RequirementAuthOnly
)

func (r Requirement) String() string {
	switch r {
	case RequirementSession:
		return "requires_session"
	case RequirementAuthOnly:
		return "auth_only"
	default:
		return "public"
	}
}

// VerdictState is the outcome of a guard evaluation.
type VerdictState string

const (
	VerdictUnknown VerdictState = "unknown"
	VerdictAllowed VerdictState = "allowed"
	VerdictDenied  VerdictState = "denied"
)

// Redirect targets used by denied verdicts.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Verdict is the access decision for a route. Redirect is set only when denied.
type Verdict struct {
	State    VerdictState `json:"state"`
	Redirect string       `json:"redirect,omitempty"`
}

// Evaluate decides access for req against sess. While the session is
// restoring the verdict is unknown: callers render a neutral placeholder and
// neither show protected content nor redirect.
func Evaluate(sess domainauth.Session, req Requirement) Verdict {
	if sess.IsRestoring {
		return Verdict{State: VerdictUnknown}
	}
	switch req {
	case RequirementSession:
		if !sess.Authenticated() {
			return Verdict{State: VerdictDenied, Redirect: LoginPath}
		}
	case RequirementAuthOnly:
		if sess.Authenticated() {
			return Verdict{State: VerdictDenied, Redirect: HomePath}
		}
	}
	return Verdict{State: VerdictAllowed}
}

// RouteTable maps paths to requirements. Unlisted paths are public.
type RouteTable map[string]Requirement

// DefaultRouteTable returns the portal's route requirements.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		"/login":     RequirementAuthOnly,
		"/register":  RequirementAuthOnly,
		"/dashboard": RequirementSession,
	}
}

// Lookup returns the requirement for path.
func (t RouteTable) Lookup(path string) Requirement {
	p := strings.TrimSpace(path)
	if p == "" {
		return RequirementPublic
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if req, ok := t[p]; ok {
		return req
	}
	return RequirementPublic
}

// RouteGuard evaluates route access against the live session. It never caches
// a verdict: every evaluation reads the store's current value.
type RouteGuard struct {
	sessions SessionReader
	routes   RouteTable
}

// NewRouteGuard constructs a guard; a nil table uses DefaultRouteTable.
func NewRouteGuard(sessions SessionReader, routes RouteTable) *RouteGuard {
	if routes == nil {
		routes = DefaultRouteTable()
	}
	return &RouteGuard{sessions: sessions, routes: routes}
}

// Evaluate decides access for req using the current session.
func (g *RouteGuard) Evaluate(req Requirement) Verdict {
	return Evaluate(g.sessions.Current(), req)
}

// EvaluatePath decides access for the route at path.
func (g *RouteGuard) EvaluatePath(path string) Verdict {
	return g.Evaluate(g.routes.Lookup(path))
}

// Requirement returns the requirement registered for path.
func (g *RouteGuard) Requirement(path string) Requirement {
	return g.routes.Lookup(path)
}

// Watch calls fn with a fresh verdict for req after every session transition.
func (g *RouteGuard) Watch(req Requirement, fn func(Verdict)) (unsubscribe func()) {
	return g.sessions.Subscribe(func(sess domainauth.Session) {
		fn(Evaluate(sess, req))
	})
}
