package identity

import (
	"fmt"
	"strings"
	"time"
)

// Role is one of a fixed ordered set: admin > manager > developer > viewer.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:    0,
	RoleDeveloper: 1,
	RoleManager:   2,
	RoleAdmin:     3,
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Valid reports whether the role belongs to the fixed set.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether the role ranks equal to or above other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

func (r Role) String() string { return string(r) }

// Identity represents a principal: a human account with a role, activation
// state and (optionally) a legacy session token.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	SessionToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
}

// HasLegacySession is the sticky-scheme predicate: a non-empty session
// token means this identity keeps authenticating through the legacy scheme
// until the field is explicitly cleared.
func (i *Identity) HasLegacySession() bool {
	return i != nil && i.SessionToken != ""
}

// Clone returns a copy safe to hand to callers and caches.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}
