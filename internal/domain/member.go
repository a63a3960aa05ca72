package domain

import "time"

// Role enumerates member authorities.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Member is the library member as seen by authentication. Username is the
// immutable principal key and the token subject.
type Member struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the resolved caller attached to a request.
type Identity struct {
	Username string
	Role     Role
}

// Identity returns the request identity of the member.
func (m *Member) Identity() Identity {
	return Identity{Username: m.Username, Role: m.Role}
}
