package auth

import "errors"

// Kind classifies authentication failures. Callers branch on the kind rather
// than on concrete error values.
type Kind int

const (
	// KindInternal covers every failure that is not an authentication verdict,
	// such as an unavailable store.
	KindInternal Kind = iota
	KindInvalidCredentials
	KindTokenMalformed
	KindSignatureInvalid
	KindTokenExpired
	KindRefreshMalformed
	KindRefreshExpired
	KindRefreshRevoked
	KindRefreshReuseDetected
	KindUnknownPrincipal
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindInvalidCredentials:   "invalid_credentials",
	KindTokenMalformed:       "token_malformed",
	KindSignatureInvalid:     "signature_invalid",
	KindTokenExpired:         "token_expired",
	KindRefreshMalformed:     "refresh_malformed",
	KindRefreshExpired:       "refresh_expired",
	KindRefreshRevoked:       "refresh_revoked",
	KindRefreshReuseDetected: "refresh_reuse_detected",
	KindUnknownPrincipal:     "unknown_principal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is an authentication verdict. Two Errors match under errors.Is when
// their kinds are equal.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "auth: " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "auth: " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrTokenMalformed       = &Error{Kind: KindTokenMalformed}
	ErrSignatureInvalid     = &Error{Kind: KindSignatureInvalid}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrRefreshMalformed     = &Error{Kind: KindRefreshMalformed}
	ErrRefreshExpired       = &Error{Kind: KindRefreshExpired}
	ErrRefreshRevoked       = &Error{Kind: KindRefreshRevoked}
	ErrRefreshReuseDetected = &Error{Kind: KindRefreshReuseDetected}
	ErrUnknownPrincipal     = &Error{Kind: KindUnknownPrincipal}
)

// NewError returns an Error of kind wrapping cause.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf returns the authentication kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}
