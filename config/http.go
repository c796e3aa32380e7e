package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for the portal client cookie.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SecureCookies marks the client cookie Secure. Disable only for plain-HTTP development.
	SecureCookies bool `env:"APP_SECURE_COOKIES" envDefault:"true"`

	// ClientIdleTTL evicts portal clients that have not been seen for this long.
	ClientIdleTTL time.Duration `env:"HTTP_CLIENT_IDLE_TTL" envDefault:"30m"`

	// SignInRate is the sustained number of sign-in attempts allowed per remote address per second.
	SignInRate float64 `env:"HTTP_SIGNIN_RATE" envDefault:"0.5"`

	// SignInBurst is the number of sign-in attempts allowed in a burst.
	SignInBurst int `env:"HTTP_SIGNIN_BURST" envDefault:"5"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.ClientIdleTTL < time.Minute {
		h.ClientIdleTTL = time.Minute
	}
	if h.SignInRate <= 0 {
		h.SignInRate = 0.5
	}
	if h.SignInBurst < 1 {
		h.SignInBurst = 1
	}
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}
