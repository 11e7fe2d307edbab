package httpapi

import (
	"net/http"

	"qazna.org/authcore/internal/auth"
)

const authHeader = "Authorization"

// requireAuth resolves the bearer token into an active identity and stores
// the principal on the request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.resolver.Resolve(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			a.respondErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// requireRole admits principals whose effective roles intersect roles. It
// must run after requireAuth.
func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.respondErr(w, r, auth.ErrUnauthenticated)
				return
			}
			if _, err := auth.Require(p.Identity, p.Claims, roles...); err != nil {
				a.respondErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalFrom(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}
