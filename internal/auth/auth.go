package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock skew tolerated on every time-based claim.
const DefaultLeeway = 30 * time.Second

var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Claims represents JWT claims used across the service.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HMAC access tokens.
type TokenCodec struct {
	secret   []byte
	method   jwt.SigningMethod
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec) error

// WithAlgorithm selects the HMAC variant (HS256, HS384 or HS512).
func WithAlgorithm(alg string) CodecOption {
	return func(c *TokenCodec) error {
		alg = strings.ToUpper(strings.TrimSpace(alg))
		if alg == "" {
			return nil
		}
		m, ok := signingMethods[alg]
		if !ok {
			return fmt.Errorf("auth: unsupported signing algorithm %q", alg)
		}
		c.method = m
		return nil
	}
}

// WithIssuer sets the issuer claim; verification then requires an exact match.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) error {
		c.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAudience sets the audience claim; verification then requires an exact match.
func WithAudience(audience string) CodecOption {
	return func(c *TokenCodec) error {
		c.audience = strings.TrimSpace(audience)
		return nil
	}
}

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *TokenCodec) error {
		if d >= 0 {
			c.leeway = d
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewTokenCodec constructs a codec for the shared secret.
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	c := &TokenCodec{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue signs a token for subject that expires after ttl.
func (c *TokenCodec) Issue(subject string, ttl time.Duration, roles []string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if ttl < time.Second {
		return "", fmt.Errorf("%w: ttl must be at least one second", ErrInvalidInput)
	}

	now := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		Roles: cloneRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.issuer,
		},
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature first and only then the claims. Every failure
// wraps ErrInvalidToken; the wrapped detail is meant for server-side logs.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if err := validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return errors.New("timestamps missing")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func cloneRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		out = append(out, role)
	}
	return out
}
