package config

import (
	"fmt"
	"strings"
	"time"
)

// BackendMode selects the authentication collaborator.
type BackendMode string

const (
	// BackendModeRemote talks to the hosted auth service over HTTP.
	BackendModeRemote BackendMode = "remote"
	// BackendModeMemory uses the in-process account directory (development only).
	BackendModeMemory BackendMode = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for BackendMode.
func (m *BackendMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "remote", "memory":
		*m = BackendMode(v)
		return nil
	default:
		return fmt.Errorf("invalid BackendMode: %q (valid options: remote, memory)", v)
	}
}

// RemoteConfig points at the hosted auth and record service.
type RemoteConfig struct {
	URL        string        `env:"URL"`
	APIKey     string        `env:"API_KEY"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"10s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"2"`
}

// DevAuthConfig controls the in-memory account directory.
// Used when BACKEND_MODE=memory for development and testing.
type DevAuthConfig struct {
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"1h"`
	// SeedAccounts lists accounts created at startup as email:password:role entries.
	SeedAccounts []string `env:"SEED_ACCOUNTS" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which auth backend to use.
	Mode BackendMode `env:"BACKEND_MODE" envDefault:"remote"`

	// Remote service configuration (used when Mode=remote or STORE_MODE=rest).
	Remote RemoteConfig `envPrefix:"REMOTE_"`

	// DevAuth configuration (used when Mode=memory).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims values and clamps retry settings.
func (c *AuthConfig) Sanitize() {
	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	c.Remote.APIKey = strings.TrimSpace(c.Remote.APIKey)
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Remote.RetryLimit < 0 {
		c.Remote.RetryLimit = 0
	}
	if c.DevAuth.SessionDuration <= 0 {
		c.DevAuth.SessionDuration = time.Hour
	}
}
