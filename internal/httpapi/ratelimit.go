package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/ratelimit"
)

const limitedPrefix = "/api/v1"

var rateLimitExempt = map[string]struct{}{
	"/health":              {},
	"/api/v1/health/live":  {},
	"/api/v1/health/ready": {},
}

func shouldRateLimit(path string) bool {
	if _, ok := rateLimitExempt[path]; ok {
		return false
	}
	return strings.HasPrefix(path, limitedPrefix)
}

// rateLimit applies the fixed-window gate to versioned API paths. When the
// backend fails the request passes without rate-limit headers.
func (a *API) rateLimit(next http.Handler) http.Handler {
	if a.gate == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		strategy, identifier := a.rateIdentity(r)
		d := a.gate.Check(r.Context(), ratelimit.Key(a.cfg.RateLimitPrefix, strategy, identifier))
		if d.Err != nil {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))
		if !d.Allowed {
			writeError(w, r, http.StatusTooManyRequests, msgTooManyRequests, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateIdentity picks the key strategy and identifier. user_or_ip keys by the
// verified token subject without touching the store, else by client address.
func (a *API) rateIdentity(r *http.Request) (string, string) {
	if a.cfg.RateLimitKeyStrategy != config.KeyStrategyUserOrIP {
		return config.KeyStrategyIP, clientIP(r)
	}
	if token, err := auth.ExtractBearerToken(r.Header.Get("Authorization")); err == nil {
		if claims, err := a.codec.Verify(token); err == nil && claims.Subject != "" {
			return config.KeyStrategyUserOrIP, claims.Subject
		}
	}
	return config.KeyStrategyUserOrIP, clientIP(r)
}
