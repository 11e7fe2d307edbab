package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const bearerPrefix = "bearer "

// Resolver turns an Authorization header into an active identity.
type Resolver struct {
	codec  *TokenCodec
	store  IdentityStore
	logger *slog.Logger
}

// NewResolver constructs a Resolver. A nil logger discards diagnostics.
func NewResolver(codec *TokenCodec, store IdentityStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{codec: codec, store: store, logger: logger}
}

// Resolve validates the bearer token in header and loads its subject. Every
// credential problem collapses to ErrUnauthenticated; the cause is logged.
// Store failures other than ErrNotFound are returned wrapped so callers can
// report them as internal errors.
func (r *Resolver) Resolve(ctx context.Context, header string) (Principal, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return Principal{}, r.reject(ctx, err)
	}
	claims, err := r.codec.Verify(token)
	if err != nil {
		return Principal{}, r.reject(ctx, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, r.reject(ctx, fmt.Errorf("subject is not an identity id: %w", err))
	}
	identity, err := r.store.GetByID(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return Principal{}, r.reject(ctx, errors.New("subject not found"))
	case err != nil:
		return Principal{}, fmt.Errorf("load identity: %w", err)
	}
	if !identity.Active {
		return Principal{}, r.reject(ctx, errors.New("identity inactive"))
	}
	return Principal{Identity: identity, Claims: claims}, nil
}

func (r *Resolver) reject(ctx context.Context, cause error) error {
	r.logger.DebugContext(ctx, "bearer token rejected", slog.String("reason", cause.Error()))
	return ErrUnauthenticated
}

// ExtractBearerToken returns the credential of a "Bearer <token>" header.
// The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
