package auth

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestTokenCodecIssueAndVerify(t *testing.T) {
	codec := newTestCodec(t, WithIssuer("authcore"), WithAudience("clients"))

	token, err := codec.Issue("user-42", 30*time.Minute, []string{"admin", "", "viewer"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "authcore" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if !slices.Equal(claims.Roles, []string{"admin", "viewer"}) {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("unexpected lifetime: %v", got)
	}
}

func TestTokenCodecEmptyRolesEncodeAsList(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Issue("user-1", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Roles == nil || len(claims.Roles) != 0 {
		t.Fatalf("expected empty role list, got %#v", claims.Roles)
	}
}

func TestTokenCodecIssueRejectsInvalidInput(t *testing.T) {
	codec := newTestCodec(t)
	if _, err := codec.Issue("  ", time.Minute, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty subject, got %v", err)
	}
	if _, err := codec.Issue("user", 0, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero ttl, got %v", err)
	}
}

func TestTokenCodecExpiryHonoursLeeway(t *testing.T) {
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestCodec(t, WithClock(fixedClock(issued)))
	token, err := issuer.Issue("user-1", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	withinLeeway := newTestCodec(t, WithClock(fixedClock(issued.Add(time.Minute+20*time.Second))))
	if _, err := withinLeeway.Verify(token); err != nil {
		t.Fatalf("expected token valid inside leeway, got %v", err)
	}

	expired := newTestCodec(t, WithClock(fixedClock(issued.Add(time.Minute+DefaultLeeway+time.Second))))
	if _, err := expired.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after leeway, got %v", err)
	}
}

func TestTokenCodecRejectsFutureIssuedAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := newTestCodec(t, WithClock(fixedClock(now.Add(5*time.Minute))))
	token, err := future.Issue("user-1", time.Hour, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	verifier := newTestCodec(t, WithClock(fixedClock(now)))
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for future iat, got %v", err)
	}
}

func TestTokenCodecRejectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Issue("user-1", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewTokenCodec("other-secret")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}

	parts := strings.Split(token, ".")
	parts[1] = parts[1] + "x"
	if _, err := codec.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered payload, got %v", err)
	}
	if _, err := codec.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestTokenCodecIssuerAudienceMismatch(t *testing.T) {
	a := newTestCodec(t, WithIssuer("one"), WithAudience("aud"))
	token, err := a.Issue("user-1", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := newTestCodec(t, WithIssuer("two"), WithAudience("aud")).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
	if _, err := newTestCodec(t, WithIssuer("one"), WithAudience("other")).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
	if _, err := newTestCodec(t).Verify(token); err != nil {
		t.Fatalf("unconfigured issuer/audience must not be enforced: %v", err)
	}
}

func TestTokenCodecRejectsOtherAlgorithms(t *testing.T) {
	hs512 := newTestCodec(t, WithAlgorithm("HS512"))
	token, err := hs512.Issue("user-1", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := newTestCodec(t).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS256 codec to reject HS512 token, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := newTestCodec(t).Verify(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}

	if _, err := NewTokenCodec("secret", WithAlgorithm("RS256")); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}

func TestTokenCodecRequiresClaims(t *testing.T) {
	now := time.Now()
	cases := map[string]jwt.MapClaims{
		"missing sub": {"iat": now.Unix(), "exp": now.Add(time.Minute).Unix()},
		"missing exp": {"sub": "user-1", "iat": now.Unix()},
		"missing iat": {"sub": "user-1", "exp": now.Add(time.Minute).Unix()},
		"exp before iat": {
			"sub": "user-1",
			"iat": now.Unix(),
			"exp": now.Add(-time.Second).Unix() + 1,
		},
	}
	codec := newTestCodec(t)
	for name, claims := range cases {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	if _, err := NewTokenCodec(" "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
