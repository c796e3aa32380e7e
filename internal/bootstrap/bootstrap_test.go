package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swachh/portal-core/config"
	"github.com/swachh/portal-core/internal/data/cryptoutil"
	"github.com/swachh/portal-core/internal/observability/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		IsDev: true,
		Auth: config.AuthConfig{
			Mode: config.BackendModeMemory,
			DevAuth: config.DevAuthConfig{
				SeedAccounts: []string{"asha@example.com:secret1:employee"},
			},
		},
		Store: config.StoreConfig{Mode: config.StoreModeMemory},
		Session: config.SessionConfig{
			TokenStore: config.TokenStoreMemory,
		},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
	cfg.Sanitize()
	cfg.HTTP.SecureCookies = false
	return cfg
}

func TestValidateConfig(t *testing.T) {
	remote := func(mut func(*config.AppConfig)) *config.AppConfig {
		cfg := &config.AppConfig{
			Auth: config.AuthConfig{
				Mode:   config.BackendModeRemote,
				Remote: config.RemoteConfig{URL: "https://auth.example.com", APIKey: "anon"},
			},
			Store: config.StoreConfig{Mode: config.StoreModeRest},
		}
		if mut != nil {
			mut(cfg)
		}
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr string
	}{
		{name: "nil", cfg: nil, wantErr: "config is required"},
		{name: "remote defaults", cfg: remote(nil)},
		{
			name:    "remote without url",
			cfg:     remote(func(c *config.AppConfig) { c.Auth.Remote.URL = "" }),
			wantErr: "REMOTE_URL is required",
		},
		{
			name:    "remote without key",
			cfg:     remote(func(c *config.AppConfig) { c.Auth.Remote.APIKey = "" }),
			wantErr: "REMOTE_API_KEY is required",
		},
		{
			name: "rest records with memory auth",
			cfg: remote(func(c *config.AppConfig) {
				c.IsDev = true
				c.Auth.Mode = config.BackendModeMemory
			}),
			wantErr: "STORE_MODE=rest requires BACKEND_MODE=remote",
		},
		{
			name: "memory auth outside dev",
			cfg: remote(func(c *config.AppConfig) {
				c.Auth.Mode = config.BackendModeMemory
				c.Store.Mode = config.StoreModeMemory
			}),
			wantErr: "only allowed in development",
		},
		{name: "memory in dev", cfg: memoryConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLoggerFollowsConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "production logs are JSON")

	buf.Reset()
	logger = newLogger(&buf, &config.AppConfig{IsDev: true, LogLevel: "debug"})
	logger.Debug("dev line")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), `msg="dev line"`)
}

func TestDescribeComponents(t *testing.T) {
	cfg := memoryConfig()
	cfg.Session.EventBusEnabled = true
	assert.Equal(t,
		[]string{"auth:memory", "records:memory", "tokens:memory", "event-bus:redis", "metrics"},
		DescribeComponents(cfg))
	assert.Empty(t, DescribeComponents(nil))
}

func TestNewPortal_MemoryModeServesSeededAccount(t *testing.T) {
	portal, err := NewPortal(context.Background(), PortalDeps{Config: memoryConfig(), Logger: discardLogger()})
	require.NoError(t, err)
	require.NotNil(t, portal.Registry)
	assert.Nil(t, portal.Bus)

	srv := httptest.NewServer(portal.Handler)
	t.Cleanup(func() {
		srv.Close()
		portal.Clients.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Post(srv.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"asha@example.com","password":"secret1","selected_role":"employee"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"authenticated":true`)

	resp, err = client.Get(srv.URL + "/api/me/summary")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metricsBody), `portal_auth_outcomes_total{operation="sign_in",outcome="signed_in"} 1`)
	assert.Contains(t, string(metricsBody), "portal_active_clients 1")
}

func TestNewPortal_MissingInfrastructure(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(*config.AppConfig)
		wantErr string
	}{
		{
			name:    "redis token store",
			mut:     func(c *config.AppConfig) { c.Session.TokenStore = config.TokenStoreRedis },
			wantErr: "redis token store requires a redis client",
		},
		{
			name:    "event bus",
			mut:     func(c *config.AppConfig) { c.Session.EventBusEnabled = true },
			wantErr: "session event bus requires a redis client",
		},
		{
			name:    "postgres records",
			mut:     func(c *config.AppConfig) { c.Store.Mode = config.StoreModePostgres },
			wantErr: "postgres record store requires a database",
		},
		{
			name: "remote without url",
			mut: func(c *config.AppConfig) {
				c.Auth.Mode = config.BackendModeRemote
				c.Store.Mode = config.StoreModeRest
			},
			wantErr: "remote base url is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			cfg.Observability.MetricsEnabled = false
			tt.mut(cfg)
			_, err := NewPortal(context.Background(), PortalDeps{Config: cfg, Logger: discardLogger()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewPortal_RemoteModeBuildsWithoutNetwork(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.Mode = config.BackendModeRemote
	cfg.Auth.Remote = config.RemoteConfig{URL: "https://auth.example.com", APIKey: "anon"}
	cfg.Store.Mode = config.StoreModeRest
	cfg.Observability.MetricsEnabled = false

	portal, err := NewPortal(context.Background(), PortalDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Nil(t, portal.Registry)
	portal.Clients.Close()
}

func TestBuildSink(t *testing.T) {
	cfg := memoryConfig()
	sink, err := buildSink(cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, notify.LogSink{}, sink)

	cfg.Observability.Notifications.Enabled = true
	cfg.Observability.Notifications.Slack = config.SlackNotificationConfig{
		Enabled:    true,
		WebhookURL: "https://hooks.slack.com/services/T/B/X",
	}
	sink, err = buildSink(cfg, discardLogger())
	require.NoError(t, err)
	fan, ok := sink.(notify.Fanout)
	require.True(t, ok)
	assert.Len(t, fan, 2)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Observability.MetricsEnabled = false
	portal, err := NewPortal(context.Background(), PortalDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)

	cfg.HTTP.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunConfig{Config: cfg, Portal: portal, Logger: discardLogger()})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, portal.Clients.Len())
}

func TestRun_RequiresPortal(t *testing.T) {
	require.Error(t, Run(context.Background(), RunConfig{Config: memoryConfig()}))
}

func TestBuildSealer(t *testing.T) {
	sealer, err := buildSealer("", discardLogger())
	require.NoError(t, err)
	assert.IsType(t, cryptoutil.Plain{}, sealer)

	sealer, err = buildSealer("a passphrase", discardLogger())
	require.NoError(t, err)
	sealed, err := sealer.Seal([]byte("handle"), "client-1")
	require.NoError(t, err)
	opened, err := sealer.Open(sealed, "client-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("handle"), opened)
}
