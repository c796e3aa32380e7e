package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role is the self-declared account classification chosen at registration.
// It is advisory: nothing in the portal treats it as a verified capability.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"

	// RoleAnonymous is the absence of a role (no identity on the session).
	RoleAnonymous Role = ""
)

// Valid reports whether r is one of the declarable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string and reports whether it is declarable.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if role.Valid() {
		return role, true
	}
	return RoleAnonymous, false
}

// Identity is the authenticated principal as reported by the remote auth service.
// Role carries the account metadata recorded at sign-up; it may be empty for
// accounts created without one.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role,omitempty"`
}

// Session is the current authentication state of one portal client.
// Identity is nil for an anonymous session. Token is the opaque handle the
// remote service issued; it is never interpreted beyond its expiry.
type Session struct {
	Identity      *Identity `json:"identity,omitempty"`
	Token         string    `json:"token,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	EstablishedAt time.Time `json:"established_at"`
	IsRestoring   bool      `json:"is_restoring"`

	// SelectedRole is the role picked on the sign-in form. It is a UI hint only.
	SelectedRole Role `json:"selected_role,omitempty"`

	// Seq is the store transition counter at which this value became authoritative.
	Seq uint64 `json:"seq"`
}

// Authenticated reports whether the session carries an identity.
func (s Session) Authenticated() bool { return s.Identity != nil }

// UserID returns the identity's user id, or "" for an anonymous session.
func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UserID
}

// Restoring returns the initial session value held before restore settles.
func Restoring() Session { return Session{IsRestoring: true} }

// Anonymous returns a settled session without identity.
func Anonymous(at time.Time) Session { return Session{EstablishedAt: at} }

// SessionEventKind names the cause of a session-change notification.
type SessionEventKind string

const (
	EventInitialSession SessionEventKind = "initial_session"
	EventSignedIn       SessionEventKind = "signed_in"
	EventSignedOut      SessionEventKind = "signed_out"
	EventTokenRefreshed SessionEventKind = "token_refreshed"
)

// SessionEvent is one element of the remote service's session-change stream.
type SessionEvent struct {
	Kind    SessionEventKind `json:"kind"`
	Session *Session         `json:"session,omitempty"`
}
