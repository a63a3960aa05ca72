package domain

import "time"

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Session is the result of a login or a successful rotation.
type Session struct {
	Identity Identity
	Tokens   TokenPair
}

// RefreshRecord is the single server-side refresh state kept per member.
// Value is the fingerprint of the only refresh token currently accepted.
type RefreshRecord struct {
	Username  string
	Value     string
	UpdatedAt time.Time
}
