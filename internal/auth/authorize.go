package auth

import (
	"slices"
	"sort"

	"github.com/google/uuid"
)

// EffectiveRoles returns the token's role claims joined with the roles derived
// from stored identity attributes. The result is sorted and deduplicated.
func EffectiveRoles(identity *Identity, claims *Claims) []string {
	set := make(map[string]struct{})
	if claims != nil {
		for _, r := range claims.Roles {
			if r != "" {
				set[r] = struct{}{}
			}
		}
	}
	if identity != nil && identity.Elevated {
		set[RoleAdmin] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether the principal's effective role set contains role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(EffectiveRoles(p.Identity, p.Claims), role)
}

// Require passes the identity through when required is empty or intersects
// the effective role set, and fails with ErrForbidden otherwise.
func Require(identity *Identity, claims *Claims, required ...string) (*Identity, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if len(required) == 0 {
		return identity, nil
	}
	effective := EffectiveRoles(identity, claims)
	for _, r := range required {
		if slices.Contains(effective, r) {
			return identity, nil
		}
	}
	return nil, ErrForbidden
}

// RequireSelfOrAdmin allows callers to read their own record. Any other
// record needs the admin role.
func RequireSelfOrAdmin(p Principal, target uuid.UUID) error {
	if p.Identity == nil {
		return ErrUnauthenticated
	}
	if p.Identity.ID == target {
		return nil
	}
	_, err := Require(p.Identity, p.Claims, RoleAdmin)
	return err
}
