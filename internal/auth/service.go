package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultAccessTTL = 30 * time.Minute
	tokenTypeBearer  = "bearer"
)

// Authenticator verifies credentials and issues sessions.
type Authenticator struct {
	store     IdentityStore
	hasher    *Hasher
	codec     *TokenCodec
	accessTTL time.Duration

	// dummyHash is compared against when the account does not exist so every
	// failed login pays for one bcrypt comparison.
	dummyHash string
}

// ServiceOption configures Authenticator behavior.
type ServiceOption func(*Authenticator) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(a *Authenticator) error {
		if ttl > 0 {
			a.accessTTL = ttl
		}
		return nil
	}
}

// WithHasher overrides the bcrypt hasher.
func WithHasher(h *Hasher) ServiceOption {
	return func(a *Authenticator) error {
		if h != nil {
			a.hasher = h
		}
		return nil
	}
}

// NewAuthenticator constructs an Authenticator with optional configuration.
func NewAuthenticator(store IdentityStore, codec *TokenCodec, opts ...ServiceOption) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("auth: identity store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	a := &Authenticator{
		store:     store,
		hasher:    NewHasher(0),
		codec:     codec,
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	dummy, err := a.hasher.Hash("authcore-dummy-password")
	if err != nil {
		return nil, err
	}
	a.dummyHash = dummy
	return a, nil
}

// Hasher exposes the configured password hasher.
func (a *Authenticator) Hasher() *Hasher { return a.hasher }

// Authenticate returns the identity owning the credentials. Unknown accounts,
// inactive accounts and password mismatches all wrap ErrInvalidCredentials;
// the wrapped reason is for server-side logs only. Store failures are returned
// unchanged.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := a.store.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		a.hasher.Verify(password, a.dummyHash)
		return nil, fmt.Errorf("%w: unknown account", ErrInvalidCredentials)
	case err != nil:
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if !a.hasher.Verify(password, identity.PasswordHash) {
		return nil, fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
	}
	if !identity.Active {
		return nil, fmt.Errorf("%w: account inactive", ErrInvalidCredentials)
	}
	return identity, nil
}

// IssueSession signs an access token for identity.
func (a *Authenticator) IssueSession(identity *Identity) (Session, error) {
	if identity == nil {
		return Session{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	roles := []string{}
	if identity.Elevated {
		roles = append(roles, RoleAdmin)
	}
	token, err := a.codec.Issue(identity.ID.String(), a.accessTTL, roles)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, TokenType: tokenTypeBearer, TTL: a.accessTTL}, nil
}
