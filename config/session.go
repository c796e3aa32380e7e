package config

import (
	"fmt"
	"strings"
	"time"
)

// TokenStoreMode selects where client token handles are persisted.
type TokenStoreMode string

const (
	TokenStoreMemory TokenStoreMode = "memory"
	TokenStoreRedis  TokenStoreMode = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for TokenStoreMode.
func (m *TokenStoreMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*m = TokenStoreMode(v)
		return nil
	default:
		return fmt.Errorf("invalid TokenStoreMode: %q (valid options: memory, redis)", v)
	}
}

// SessionConfig controls the per-client session core.
type SessionConfig struct {
	// RestoreTimeout bounds the initial restore; on expiry the client is anonymous.
	RestoreTimeout time.Duration `env:"RESTORE_TIMEOUT" envDefault:"10s"`

	// InboxSize is the number of undelivered notices kept per client.
	InboxSize int `env:"INBOX_SIZE" envDefault:"20"`

	TokenStore  TokenStoreMode `env:"TOKEN_STORE"  envDefault:"memory"`
	TokenPrefix string         `env:"TOKEN_PREFIX" envDefault:"portal:token:"`
	// TokenTTL applies when a token carries no expiry of its own.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	// TokenEncryptionKey seals handles kept in Redis. A 64-char hex key is used
	// as-is; any other value is hashed. Empty stores handles unencrypted.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	// EventBusEnabled fans session events out to other portal processes over Redis.
	EventBusEnabled bool   `env:"EVENT_BUS_ENABLED" envDefault:"false"`
	EventChannel    string `env:"EVENT_CHANNEL"     envDefault:"portal:session-events"`
}

// Sanitize applies guardrails to session configuration values.
func (c *SessionConfig) Sanitize() {
	if c.RestoreTimeout <= 0 {
		c.RestoreTimeout = 10 * time.Second
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 20
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	c.TokenEncryptionKey = strings.TrimSpace(c.TokenEncryptionKey)
	c.TokenPrefix = strings.TrimSpace(c.TokenPrefix)
	if c.TokenPrefix == "" {
		c.TokenPrefix = "portal:token:"
	}
	c.EventChannel = strings.TrimSpace(c.EventChannel)
	if c.EventChannel == "" {
		c.EventChannel = "portal:session-events"
	}
}
