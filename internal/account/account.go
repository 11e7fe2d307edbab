// Package account holds identity management operations: registration,
// cached lookups and administrative activation changes.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"qazna.org/authcore/internal/audit"
	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/cache"
)

// MaxCacheTTL bounds how stale a cached identity read can be.
const MaxCacheTTL = 60 * time.Second

// Paging bounds for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Public is the externally visible form of an identity.
type Public struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

// PublicOf projects identity onto its public form.
func PublicOf(identity *auth.Identity) Public {
	return Public{
		ID:          identity.ID.String(),
		Email:       identity.Email,
		IsActive:    identity.Active,
		IsSuperuser: identity.Elevated,
	}
}

// Registration describes a new identity.
type Registration struct {
	Email    string
	Password string
	Elevated bool
	Inactive bool
}

// Service implements identity management on top of an auth.IdentityStore.
type Service struct {
	store    auth.IdentityStore
	hasher   *auth.Hasher
	cache    *cache.Cache
	cacheTTL time.Duration
	audit    *audit.Logger
	logger   *slog.Logger
	validate *validator.Validate
}

// Option configures Service behavior.
type Option func(*Service)

// WithCache enables read-through caching of identity lookups. ttl is clamped
// to MaxCacheTTL; non-positive values mean MaxCacheTTL.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ClampTTL(ttl)
	}
}

// WithAudit records registration and activation changes.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. A nil hasher uses bcrypt's default cost.
func New(store auth.IdentityStore, hasher *auth.Hasher, opts ...Option) *Service {
	if hasher == nil {
		hasher = auth.NewHasher(0)
	}
	s := &Service{
		store:    store,
		hasher:   hasher,
		cache:    cache.New(nil, ""),
		cacheTTL: MaxCacheTTL,
		logger:   slog.New(slog.DiscardHandler),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampTTL applies the identity cache staleness bound.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > MaxCacheTTL {
		return MaxCacheTTL
	}
	return ttl
}

// Register validates and stores a new identity. Duplicate emails fail with
// auth.ErrConflict.
func (s *Service) Register(ctx context.Context, r Registration) (*auth.Identity, error) {
	email := strings.TrimSpace(r.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email", auth.ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, err
	}
	identity, err := s.store.Create(ctx, auth.NewIdentity{
		Email:        email,
		PasswordHash: hash,
		Active:       !r.Inactive,
		Elevated:     r.Elevated,
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.LogEvent(ctx, audit.UserRegistered, map[string]any{
		"user_id":  identity.ID.String(),
		"elevated": identity.Elevated,
	})
	return identity, nil
}

// Get loads an identity through the cache. Cached entries carry only the
// public fields, so the returned identity has no password hash.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	key := cacheKey(id)
	var cached Public
	if s.cache.GetJSON(ctx, key, &cached) && cached.ID == id.String() {
		return &auth.Identity{ID: id, Email: cached.Email, Active: cached.IsActive, Elevated: cached.IsSuperuser}, nil
	}
	identity, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, PublicOf(identity), s.cacheTTL)
	return identity, nil
}

// List returns one page of identities, newest first. limit is clamped to
// 1..MaxListLimit with DefaultListLimit for zero; negative offsets mean 0.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*auth.Identity, error) {
	return s.store.List(ctx, ClampLimit(limit), max(offset, 0))
}

// ClampLimit applies the paging bounds used by List.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// SetActive changes the active flag and drops the cached copy.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*auth.Identity, error) {
	identity, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, cacheKey(id))
	event := audit.UserDeactivated
	if active {
		event = audit.UserActivated
	}
	_ = s.audit.LogEvent(ctx, event, map[string]any{"user_id": id.String()})
	return identity, nil
}

func cacheKey(id uuid.UUID) string {
	return "users:" + id.String()
}
