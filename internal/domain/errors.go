package domain

import "errors"

var (
	// ErrMemberNotFound is returned by member lookups for an unknown username.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberExists is returned when creating a member whose username is taken.
	ErrMemberExists = errors.New("member already exists")
)
