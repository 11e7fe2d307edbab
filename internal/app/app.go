// Package app assembles the service from configuration. It owns backend
// selection for the rate limiter and the cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"qazna.org/authcore/internal/account"
	"qazna.org/authcore/internal/audit"
	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/cache"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/httpapi"
	"qazna.org/authcore/internal/kv"
	"qazna.org/authcore/internal/obs"
	"qazna.org/authcore/internal/ratelimit"
	"qazna.org/authcore/internal/store/sqlstore"
)

// ErrNoDatabase is returned when DATABASE_URL is empty.
var ErrNoDatabase = errors.New("app: DATABASE_URL is not configured")

// App is a fully wired service.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *obs.Metrics
	Store    *sqlstore.Store
	Redis    *redis.Client
	Accounts *account.Service
	API      *httpapi.API
	Health   *httpapi.HealthServer
}

// OpenStore connects to DATABASE_URL.
func OpenStore(ctx context.Context, cfg config.Config) (*sqlstore.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, ErrNoDatabase
	}
	return sqlstore.Open(ctx, cfg.DatabaseURL)
}

// NewAccounts builds the identity management service for administrative
// tools. It uses the same cache backend as the API so activation changes
// invalidate cached identities.
func NewAccounts(store auth.IdentityStore, client *redis.Client, cfg config.Config, logger *slog.Logger) *account.Service {
	return newAccounts(store, auth.NewHasher(cfg.BcryptCost), client, cfg, logger, nil, audit.New(logger))
}

func newAccounts(store auth.IdentityStore, hasher *auth.Hasher, client *redis.Client, cfg config.Config,
	logger *slog.Logger, metrics *obs.Metrics, auditLog *audit.Logger) *account.Service {
	idCache := cache.New(SelectCacheBackend(cfg, client, logger), cfg.CachePrefix,
		cache.WithLogger(logger), cache.WithMetrics(metrics))
	return account.New(store, hasher,
		account.WithCache(idCache, cfg.CacheTTL()),
		account.WithAudit(auditLog),
		account.WithLogger(logger),
	)
}

// SelectLimiter picks the rate-limit backend: nil when disabled, Redis when
// a client is available, in-process memory only in the test environment.
// Anything else disables limiting with a warning.
func SelectLimiter(cfg config.Config, client *redis.Client, logger *slog.Logger) ratelimit.Limiter {
	switch {
	case !cfg.RateLimitEnabled:
		return nil
	case client != nil:
		return ratelimit.NewRedis(client, time.Now)
	case cfg.IsTest():
		return ratelimit.NewMemory()
	default:
		logger.Warn("rate limiting enabled but REDIS_URL is not set; limiter disabled")
		return nil
	}
}

// SelectCacheBackend mirrors SelectLimiter with Noop in place of nil.
func SelectCacheBackend(cfg config.Config, client *redis.Client, logger *slog.Logger) cache.Backend {
	switch {
	case !cfg.CacheEnabled:
		return cache.Noop{}
	case client != nil:
		return cache.NewRedis(client)
	case cfg.IsTest():
		return cache.NewMemory(time.Now)
	default:
		logger.Warn("cache enabled but REDIS_URL is not set; cache disabled")
		return cache.Noop{}
	}
}

// New wires every component. The caller owns Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *obs.Metrics) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := kv.Open(cfg.RedisURL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a, err := assemble(cfg, logger, metrics, store, client)
	if err != nil {
		_ = store.Close()
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	return a, nil
}

func assemble(cfg config.Config, logger *slog.Logger, metrics *obs.Metrics, store *sqlstore.Store, client *redis.Client) (*App, error) {
	codec, err := auth.NewTokenCodec(cfg.JWTSecretKey,
		auth.WithAlgorithm(cfg.JWTAlgorithm),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAudience(cfg.JWTAudience),
	)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewHasher(cfg.BcryptCost)
	authn, err := auth.NewAuthenticator(store, codec,
		auth.WithHasher(hasher),
		auth.WithAccessTTL(cfg.AccessTTL()),
	)
	if err != nil {
		return nil, err
	}
	auditLog := audit.New(logger)

	accounts := newAccounts(store, hasher, client, cfg, logger, metrics, auditLog)

	var gate *ratelimit.Gate
	if limiter := SelectLimiter(cfg, client, logger); limiter != nil {
		gate = ratelimit.NewGate(limiter, cfg.RateLimitRequests, cfg.RateLimitWindow(), logger, metrics)
	}

	probe := httpapi.ReadyProbe{DB: store, Redis: client}
	api, err := httpapi.New(httpapi.Deps{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Codec:         codec,
		Authenticator: authn,
		Resolver:      auth.NewResolver(codec, store, logger),
		Accounts:      accounts,
		RateLimit:     gate,
		Audit:         auditLog,
		Ready:         probe,
	})
	if err != nil {
		return nil, fmt.Errorf("build http api: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Store:    store,
		Redis:    client,
		Accounts: accounts,
		API:      api,
		Health:   httpapi.NewHealthServer(probe, cfg.AppName, logger, metrics),
	}, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
