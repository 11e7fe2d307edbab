package auth

import (
	"time"

	"github.com/google/uuid"
)

// RoleAdmin is the only role the system derives on its own. It is granted to
// identities carrying the elevated-privilege flag.
const RoleAdmin = "admin"

// Identity represents a registered principal.
type Identity struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Active       bool
	Elevated     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdentity carries the attributes required to register an identity.
type NewIdentity struct {
	Email        string
	PasswordHash string
	Active       bool
	Elevated     bool
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string
	TokenType   string
	TTL         time.Duration
}

// ExpiresIn reports the token lifetime in whole seconds.
func (s Session) ExpiresIn() int64 {
	return int64(s.TTL / time.Second)
}

// Principal is an authenticated identity together with the verified claims of
// the token it presented.
type Principal struct {
	Identity *Identity
	Claims   *Claims
}
