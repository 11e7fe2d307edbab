// Package httpapi exposes the authentication core over HTTP and gRPC.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"qazna.org/authcore/internal/account"
	"qazna.org/authcore/internal/audit"
	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/obs"
	"qazna.org/authcore/internal/ratelimit"
)

const versionPrefix = "/api/v1"

// Deps carries the collaborators of the HTTP layer. RateLimit, Metrics,
// Audit and Logger are optional.
type Deps struct {
	Config        config.Config
	Logger        *slog.Logger
	Metrics       *obs.Metrics
	Codec         *auth.TokenCodec
	Authenticator *auth.Authenticator
	Resolver      *auth.Resolver
	Accounts      *account.Service
	RateLimit     *ratelimit.Gate
	Audit         *audit.Logger
	Ready         ReadyProbe
}

// API is the HTTP layer.
type API struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *obs.Metrics
	codec    *auth.TokenCodec
	authn    *auth.Authenticator
	resolver *auth.Resolver
	accounts *account.Service
	gate     *ratelimit.Gate
	audit    *audit.Logger
	ready    ReadyProbe
	validate *validator.Validate
	router   chi.Router
}

// New wires the router.
func New(d Deps) (*API, error) {
	switch {
	case d.Codec == nil:
		return nil, errors.New("httpapi: token codec is required")
	case d.Authenticator == nil:
		return nil, errors.New("httpapi: authenticator is required")
	case d.Resolver == nil:
		return nil, errors.New("httpapi: resolver is required")
	case d.Accounts == nil:
		return nil, errors.New("httpapi: account service is required")
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	a := &API{
		cfg:      d.Config,
		logger:   d.Logger,
		metrics:  d.Metrics,
		codec:    d.Codec,
		authn:    d.Authenticator,
		resolver: d.Resolver,
		accounts: d.Accounts,
		gate:     d.RateLimit,
		audit:    d.Audit,
		ready:    d.Ready,
		validate: newValidator(),
	}
	a.router = a.routes()
	return a, nil
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	r.Use(
		CORS(a.cfg.CORSAllowOrigins),
		RequestID(a.cfg.RequestIDHeader),
		AccessLog(a.logger),
		Recover(a.logger),
		Tracing(a.cfg.AppName),
		Instrument(a.metrics),
		SecurityHeaders,
		MaxBodyBytes(a.cfg.MaxBodyBytes),
		a.rateLimit,
	)

	r.Get("/health", a.handleHealth)
	if a.cfg.MetricsEnabled && a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route(versionPrefix, func(r chi.Router) {
		r.Get("/health/live", a.handleHealth)
		r.Get("/health/ready", a.handleReady)
		r.Route("/auth", a.authRoutes)

		r.Post("/users", a.handleRegister)
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/users/me", a.handleMe)
			r.Get("/users/{userID}", a.handleGetUser)

			r.Group(func(r chi.Router) {
				r.Use(a.requireRole(auth.RoleAdmin))
				r.Get("/users", a.handleListUsers)
				r.Post("/users/{userID}/activate", a.handleSetActive(true))
				r.Post("/users/{userID}/deactivate", a.handleSetActive(false))
			})
		})
	})

	// Unversioned aliases kept for older clients. Only login, me and
	// registration are aliased; identity reads stay behind /api/v1 guards.
	if legacy := a.cfg.APIPrefix; !strings.HasPrefix(legacy+"/", versionPrefix+"/") {
		r.Route(legacy+"/auth", a.authRoutes)
		r.Post(legacy+"/users", a.handleRegister)
	}
	return r
}

func (a *API) authRoutes(r chi.Router) {
	r.Post("/login", a.handleLogin)
	r.With(a.requireAuth).Get("/me", a.handleMe)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
