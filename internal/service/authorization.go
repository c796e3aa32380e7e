package service

import domainauth "github.com/swachh/portal-core/internal/domain/auth"

// AuthorizationResolver derives the effective role of a session.
//
// The role comes from the account record written at sign-up and is never
// verified remotely. It drives presentation only; it must not gate any
// data-modifying operation.
type AuthorizationResolver struct {
	// DefaultRole applies to identities whose account record carries no role.
	DefaultRole domainauth.Role
}

// NewAuthorizationResolver returns a resolver that defaults to citizen.
func NewAuthorizationResolver() AuthorizationResolver {
	return AuthorizationResolver{DefaultRole: domainauth.RoleCitizen}
}

// Resolve returns RoleAnonymous for a session without identity, otherwise the
// declared role. The sign-in form's SelectedRole never influences the result.
func (r AuthorizationResolver) Resolve(sess domainauth.Session) domainauth.Role {
	if !sess.Authenticated() {
		return domainauth.RoleAnonymous
	}
	if sess.Identity.Role.Valid() {
		return sess.Identity.Role
	}
	if r.DefaultRole.Valid() {
		return r.DefaultRole
	}
	return domainauth.RoleCitizen
}

// RoleHintMismatch reports whether the role picked at sign-in differs from
// the resolved role.
func (r AuthorizationResolver) RoleHintMismatch(sess domainauth.Session) bool {
	if !sess.Authenticated() || sess.SelectedRole == domainauth.RoleAnonymous {
		return false
	}
	return sess.SelectedRole != r.Resolve(sess)
}
