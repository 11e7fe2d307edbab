// Package config loads the immutable process configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Rate-limit key strategies.
const (
	KeyStrategyIP       = "ip"
	KeyStrategyUserOrIP = "user_or_ip"
)

// Config is built once at startup and passed to constructors by value.
type Config struct {
	AppEnv    string `env:"APP_ENV"`
	LegacyEnv string `env:"ENV"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`
	AppName   string `env:"APP_NAME" envDefault:"authcore"`
	APIPrefix string `env:"API_PREFIX" envDefault:""`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	GRPCAddr string `env:"GRPC_ADDR"`

	LogLevel        string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogJSON         bool   `env:"LOG_JSON" envDefault:"true"`
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:","`
	MaxBodyBytes     int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	JWTSecretKey          string `env:"JWT_SECRET_KEY"`
	JWTAlgorithm          string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTAccessTokenMinutes int    `env:"JWT_ACCESS_TOKEN_EXPIRES_MINUTES" envDefault:"30"`
	JWTIssuer             string `env:"JWT_ISSUER"`
	JWTAudience           string `env:"JWT_AUDIENCE"`
	BcryptCost            int    `env:"BCRYPT_COST" envDefault:"10"`

	RateLimitEnabled       bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	RateLimitRequests      int    `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitPrefix        string `env:"RATE_LIMIT_PREFIX" envDefault:"rl:"`
	RateLimitKeyStrategy   string `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip"`

	CacheEnabled           bool   `env:"CACHE_ENABLED" envDefault:"false"`
	CacheDefaultTTLSeconds int    `env:"CACHE_DEFAULT_TTL_SECONDS" envDefault:"60"`
	CachePrefix            string `env:"CACHE_PREFIX" envDefault:"cache:"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	if c.AppEnv == "" {
		c.AppEnv = strings.ToLower(strings.TrimSpace(c.LegacyEnv))
	}
	if c.AppEnv == "" {
		c.AppEnv = "local"
	}
	c.APIPrefix = strings.TrimRight(strings.TrimSpace(c.APIPrefix), "/")
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		c.APIPrefix = "/" + c.APIPrefix
	}
	c.JWTAlgorithm = strings.ToUpper(strings.TrimSpace(c.JWTAlgorithm))
	c.RateLimitKeyStrategy = strings.ToLower(strings.TrimSpace(c.RateLimitKeyStrategy))
	if strings.TrimSpace(c.RequestIDHeader) == "" {
		c.RequestIDHeader = "X-Request-ID"
	}
	origins := c.CORSAllowOrigins[:0]
	for _, o := range c.CORSAllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowOrigins = origins
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm))
	}
	if c.JWTAccessTokenMinutes <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TOKEN_EXPIRES_MINUTES must be positive"))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be positive"))
	}
	if c.RateLimitWindowSeconds <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_SECONDS must be positive"))
	}
	switch c.RateLimitKeyStrategy {
	case KeyStrategyIP, KeyStrategyUserOrIP:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_KEY_STRATEGY %q is not supported", c.RateLimitKeyStrategy))
	}
	if c.CacheDefaultTTLSeconds < 0 {
		errs = append(errs, errors.New("CACHE_DEFAULT_TTL_SECONDS must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsTest reports whether the process runs in the test environment, which
// enables in-process cache and limiter backends.
func (c Config) IsTest() bool { return c.AppEnv == "test" }

// AccessTTL is the lifetime of issued access tokens.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTokenMinutes) * time.Minute
}

// RateLimitWindow is the fixed window length.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// CacheTTL is the configured default cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheDefaultTTLSeconds) * time.Second
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean INFO.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	name := strings.ToUpper(strings.TrimSpace(c.LogLevel))
	switch name {
	case "WARNING":
		name = "WARN"
	case "CRITICAL", "FATAL":
		name = "ERROR"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SafeFields returns a log-safe view of the configuration. Passwords inside
// connection URLs are masked and the signing secret is omitted.
func (c Config) SafeFields() []slog.Attr {
	return []slog.Attr{
		slog.String("app_env", c.AppEnv),
		slog.String("app_name", c.AppName),
		slog.Bool("debug", c.Debug),
		slog.String("api_prefix", c.APIPrefix),
		slog.String("http_addr", c.HTTPAddr),
		slog.String("grpc_addr", c.GRPCAddr),
		slog.String("log_level", c.SlogLevel().String()),
		slog.String("database_url", RedactURL(c.DatabaseURL)),
		slog.String("redis_url", RedactURL(c.RedisURL)),
		slog.String("jwt_algorithm", c.JWTAlgorithm),
		slog.Int("jwt_access_token_expires_minutes", c.JWTAccessTokenMinutes),
		slog.Bool("rate_limit_enabled", c.RateLimitEnabled),
		slog.Int("rate_limit_requests", c.RateLimitRequests),
		slog.Int("rate_limit_window_seconds", c.RateLimitWindowSeconds),
		slog.String("rate_limit_key_strategy", c.RateLimitKeyStrategy),
		slog.Bool("cache_enabled", c.CacheEnabled),
		slog.Int("cache_default_ttl_seconds", c.CacheDefaultTTLSeconds),
		slog.Bool("metrics_enabled", c.MetricsEnabled),
		slog.Bool("tracing_enabled", c.OTLPEndpoint != ""),
	}
}

// RedactURL masks the password component of a connection URL. Values that do
// not parse as URLs are reported as "***" when non-empty.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	// url escapes '*' inside userinfo.
	return strings.Replace(u.String(), ":%2A%2A%2A@", ":***@", 1)
}
