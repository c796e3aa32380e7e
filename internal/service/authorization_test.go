package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
)

func TestAuthorizationResolver_Resolve(t *testing.T) {
	r := NewAuthorizationResolver()

	tests := []struct {
		name string
		sess domainauth.Session
		want domainauth.Role
	}{
		{name: "anonymous", sess: domainauth.Anonymous(time.Now()), want: domainauth.RoleAnonymous},
		{name: "restoring", sess: domainauth.Restoring(), want: domainauth.RoleAnonymous},
		{name: "declared employee", sess: domainauth.Session{Identity: &domainauth.Identity{UserID: "u", Role: domainauth.RoleEmployee}}, want: domainauth.RoleEmployee},
		{name: "missing role defaults", sess: domainauth.Session{Identity: &domainauth.Identity{UserID: "u"}}, want: domainauth.RoleCitizen},
		{name: "garbage role defaults", sess: domainauth.Session{Identity: &domainauth.Identity{UserID: "u", Role: "root"}}, want: domainauth.RoleCitizen},
		{
			name: "hint is ignored",
			sess: domainauth.Session{
				Identity:     &domainauth.Identity{UserID: "u", Role: domainauth.RoleCitizen},
				SelectedRole: domainauth.RoleAdmin,
			},
			want: domainauth.RoleCitizen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.sess))
		})
	}
}

func TestAuthorizationResolver_RoleHintMismatch(t *testing.T) {
	r := AuthorizationResolver{}
	sess := domainauth.Session{
		Identity:     &domainauth.Identity{UserID: "u", Role: domainauth.RoleCitizen},
		SelectedRole: domainauth.RoleAdmin,
	}
	assert.True(t, r.RoleHintMismatch(sess))

	sess.SelectedRole = domainauth.RoleCitizen
	assert.False(t, r.RoleHintMismatch(sess))

	sess.SelectedRole = domainauth.RoleAnonymous
	assert.False(t, r.RoleHintMismatch(sess))

	assert.False(t, r.RoleHintMismatch(domainauth.Anonymous(time.Now())))
}
