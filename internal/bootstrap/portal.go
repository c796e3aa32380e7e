package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/swachh/portal-core/config"
	"github.com/swachh/portal-core/internal/adapters/devauth"
	redisadapter "github.com/swachh/portal-core/internal/adapters/redis"
	"github.com/swachh/portal-core/internal/adapters/remote"
	"github.com/swachh/portal-core/internal/data"
	"github.com/swachh/portal-core/internal/data/cryptoutil"
	"github.com/swachh/portal-core/internal/devseed"
	httpx "github.com/swachh/portal-core/internal/http"
	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/observability/notify"
	"github.com/swachh/portal-core/internal/observability/notify/slack"
	"github.com/swachh/portal-core/internal/ports"
	"github.com/swachh/portal-core/internal/service"
)

// PortalDeps contains the connected infrastructure the portal is built on.
type PortalDeps struct {
	Config *config.AppConfig
	// DB is required when STORE_MODE=postgres.
	DB *sql.DB
	// Redis is required for the redis token store and the event bus.
	Redis  redis.UniversalClient
	Logger *slog.Logger
	Clock  func() time.Time
}

// Portal is the assembled runtime: the per-browser client registry, the HTTP
// handler in front of it, and the background loops that must run beside it.
type Portal struct {
	Clients  *httpx.ClientRegistry
	Handler  http.Handler
	Bus      *redisadapter.SessionEventBus // nil unless the event bus is enabled
	Registry *prometheus.Registry          // nil when metrics are disabled
}

// clientParts returns the auth backend and record store for one portal client.
type clientParts func(clientID string) (ports.AuthBackend, ports.RecordStore)

// NewPortal wires the portal from cfg. ctx bounds development seeding only.
func NewPortal(ctx context.Context, deps PortalDeps) (*Portal, error) {
	if deps.Config == nil {
		return nil, errors.New("portal config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	p := &Portal{}
	var portalMetrics *metrics.Portal
	if cfg.Observability.MetricsEnabled {
		p.Registry = metrics.NewRegistry()
		portalMetrics = metrics.NewPortal(p.Registry)
	}

	tokens, err := buildTokenStore(cfg, deps.Redis, logger, now)
	if err != nil {
		return nil, err
	}

	var broadcaster ports.SessionBroadcaster
	if cfg.Session.EventBusEnabled {
		if deps.Redis == nil {
			return nil, errors.New("session event bus requires a redis client")
		}
		p.Bus = redisadapter.NewSessionEventBus(deps.Redis, redisadapter.SessionEventBusOptions{
			Channel: cfg.Session.EventChannel,
			Logger:  logger,
		})
		broadcaster = p.Bus
	}

	sink, err := buildSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	parts, err := buildClientParts(ctx, clientPartsConfig{
		cfg:         cfg,
		db:          deps.DB,
		tokens:      tokens,
		broadcaster: broadcaster,
		logger:      logger,
		now:         now,
	})
	if err != nil {
		return nil, err
	}

	factory := func(id string) (*service.PortalClient, error) {
		backend, records := parts(id)
		return service.NewPortalClient(service.PortalClientOptions{
			ID:             id,
			Backend:        backend,
			Records:        records,
			Sink:           sink,
			Routes:         service.DefaultRouteTable(),
			Logger:         logger,
			Metrics:        portalMetrics,
			RestoreTimeout: cfg.Session.RestoreTimeout,
			InboxSize:      cfg.Session.InboxSize,
			Clock:          now,
		})
	}

	p.Clients, err = httpx.NewClientRegistry(httpx.ClientRegistryOptions{
		Factory:       factory,
		IdleTTL:       cfg.HTTP.ClientIdleTTL,
		CookieDomain:  cfg.HTTP.CookieDomain,
		SecureCookies: cfg.HTTP.SecureCookies,
		Metrics:       portalMetrics,
		Logger:        logger,
		Clock:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("client registry: %w", err)
	}

	services := httpx.RouterServices{
		Clients:       p.Clients,
		SignInLimiter: httpx.NewSignInLimiter(cfg.HTTP.SignInRate, cfg.HTTP.SignInBurst, cfg.HTTP.ClientIdleTTL),
		Logger:        logger,
	}
	if p.Registry != nil {
		services.Metrics = metrics.Handler(p.Registry)
	}
	p.Handler = httpx.NewRouter(services)
	return p, nil
}

//nolint:ireturn // the token store is selected at runtime.
func buildTokenStore(
	cfg *config.AppConfig,
	client redis.UniversalClient,
	logger *slog.Logger,
	now func() time.Time,
) (ports.TokenStore, error) {
	switch cfg.Session.TokenStore {
	case config.TokenStoreRedis:
		if client == nil {
			return nil, errors.New("redis token store requires a redis client")
		}
		sealer, err := buildSealer(cfg.Session.TokenEncryptionKey, logger)
		if err != nil {
			return nil, err
		}
		return redisadapter.NewTokenStore(client, redisadapter.TokenStoreOptions{
			Prefix:      cfg.Session.TokenPrefix,
			FallbackTTL: cfg.Session.TokenTTL,
			Sealer:      sealer,
			Clock:       now,
		}), nil
	case config.TokenStoreMemory, "":
		return devauth.NewTokenStore(now), nil
	default:
		return nil, fmt.Errorf("unsupported token store %q", cfg.Session.TokenStore)
	}
}

//nolint:ireturn // the sealer depends on whether a key is configured.
func buildSealer(key string, logger *slog.Logger) (cryptoutil.Sealer, error) {
	if key == "" {
		logger.Warn("SESSION_TOKEN_ENCRYPTION_KEY is empty; token handles are stored unencrypted")
		return cryptoutil.Plain{}, nil
	}
	sealer, err := cryptoutil.NewAESGCMFromString(key)
	if err != nil {
		return nil, fmt.Errorf("token encryption: %w", err)
	}
	return sealer, nil
}

// buildSink returns the operator-facing sink shared by every client. Each
// client still gets its own inbox in front of it.
//
//nolint:ireturn // the sink chain depends on configuration.
func buildSink(cfg *config.AppConfig, logger *slog.Logger) (ports.NotificationSink, error) {
	logSink := notify.LogSink{Logger: logger.With("component", "notices")}
	slackCfg := cfg.Observability.Notifications.Slack
	if !slackCfg.Enabled {
		return logSink, nil
	}
	client, err := slack.NewClient(slack.Config{
		WebhookURL:   slackCfg.WebhookURL,
		Channel:      slackCfg.Channel,
		Username:     slackCfg.Username,
		Timeout:      cfg.Observability.Notifications.Timeout,
		RetryLimit:   cfg.Observability.Notifications.RetryLimit,
		DashboardURL: slackCfg.DashboardURL,
	})
	if err != nil {
		return nil, fmt.Errorf("slack notifications: %w", err)
	}
	logger.Info("slack notifications enabled", "channel", slackCfg.Channel)
	return notify.Fanout{logSink, client}, nil
}

type clientPartsConfig struct {
	cfg         *config.AppConfig
	db          *sql.DB
	tokens      ports.TokenStore
	broadcaster ports.SessionBroadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func buildClientParts(ctx context.Context, c clientPartsConfig) (clientParts, error) {
	shared, err := buildSharedRecords(c.cfg, c.db)
	if err != nil {
		return nil, err
	}

	switch c.cfg.Auth.Mode {
	case config.BackendModeMemory:
		return devParts(ctx, c, shared)
	case config.BackendModeRemote:
		return remoteParts(c, shared)
	default:
		return nil, fmt.Errorf("unsupported auth backend %q", c.cfg.Auth.Mode)
	}
}

// buildSharedRecords returns the process-wide record store, or nil when
// records go through each client's authenticated REST session.
//
//nolint:ireturn // the record store is selected at runtime.
func buildSharedRecords(cfg *config.AppConfig, db *sql.DB) (ports.RecordStore, error) {
	switch cfg.Store.Mode {
	case config.StoreModeMemory:
		return devauth.NewRecords(), nil
	case config.StoreModePostgres:
		if db == nil {
			return nil, errors.New("postgres record store requires a database")
		}
		return data.NewRecordRepo(db), nil
	case config.StoreModeRest:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported record store %q", cfg.Store.Mode)
	}
}

func devParts(ctx context.Context, c clientPartsConfig, shared ports.RecordStore) (clientParts, error) {
	if shared == nil {
		return nil, errors.New("memory auth backend needs a shared record store")
	}
	dir := devauth.NewDirectory(devauth.Config{
		SessionDuration: c.cfg.Auth.DevAuth.SessionDuration,
		Clock:           c.now,
	})
	if err := devseed.Run(ctx, devseed.Seeds{
		Directory: dir,
		Records:   shared,
		Accounts:  c.cfg.Auth.DevAuth.SeedAccounts,
		Clock:     c.now,
	}, c.logger); err != nil {
		c.logger.WarnContext(ctx, "development seeding incomplete", "error", err)
	}

	backends := devauth.NewBackendFactory(dir, c.tokens, c.broadcaster, c.logger)
	return func(id string) (ports.AuthBackend, ports.RecordStore) {
		return backends(id), shared
	}, nil
}

func remoteParts(c clientPartsConfig, shared ports.RecordStore) (clientParts, error) {
	svc, err := remote.NewService(remote.Config{
		BaseURL:    c.cfg.Auth.Remote.URL,
		APIKey:     c.cfg.Auth.Remote.APIKey,
		Timeout:    c.cfg.Auth.Remote.Timeout,
		RetryLimit: c.cfg.Auth.Remote.RetryLimit,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("remote service: %w", err)
	}
	return func(id string) (ports.AuthBackend, ports.RecordStore) {
		backend := svc.NewBackend(remote.BackendOptions{
			ClientID:    id,
			Tokens:      c.tokens,
			Broadcaster: c.broadcaster,
			Clock:       c.now,
		})
		if shared != nil {
			return backend, shared
		}
		return backend, svc.NewRecords(backend)
	}, nil
}
