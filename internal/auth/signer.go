package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Purpose selects which secret signs and verifies a token.
type Purpose int

const (
	PurposeAccess Purpose = iota
	PurposeRefresh
)

func (p Purpose) String() string {
	switch p {
	case PurposeAccess:
		return "access"
	case PurposeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Clock returns the current time.
type Clock func() time.Time

// Claims describes the JWT payload shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer signs and verifies HS256 tokens with one secret per purpose.
// It holds no mutable state and is safe for concurrent use.
type Signer struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	now        Clock
}

// SignerOption customizes a Signer.
type SignerOption func(*Signer)

// WithIssuer makes Verify reject tokens whose iss claim differs from issuer.
func WithIssuer(issuer string) SignerOption {
	return func(s *Signer) { s.issuer = issuer }
}

// WithSignerClock overrides the clock used for expiry checks.
func WithSignerClock(now Clock) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner builds a signer from decoded access and refresh secrets.
func NewSigner(accessKey, refreshKey []byte, opts ...SignerOption) (*Signer, error) {
	if len(accessKey) == 0 || len(refreshKey) == 0 {
		return nil, errors.New("signer requires access and refresh keys")
	}
	s := &Signer{
		accessKey:  append([]byte(nil), accessKey...),
		refreshKey: append([]byte(nil), refreshKey...),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) key(purpose Purpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess:
		return s.accessKey, nil
	case PurposeRefresh:
		return s.refreshKey, nil
	default:
		return nil, fmt.Errorf("unknown token purpose %d", purpose)
	}
}

// Sign returns the compact serialization of claims signed with the purpose's key.
func (s *Signer) Sign(claims Claims, purpose Purpose) (string, error) {
	key, err := s.key(purpose)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry. When the only failure is expiry
// the authenticated claims are returned together with the expired error.
func (s *Signer) Verify(tokenStr string, purpose Purpose) (*Claims, error) {
	key, err := s.key(purpose)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		verdict := classify(err, purpose)
		if verdict.Kind == KindTokenExpired || verdict.Kind == KindRefreshExpired {
			return claims, verdict
		}
		return nil, verdict
	}
	if claims.Subject == "" {
		return nil, NewError(malformedKind(purpose), errors.New("missing subject"))
	}
	return claims, nil
}

// classify maps jwt parse errors onto auth kinds. The parser verifies the
// signature before it validates claims, so an expiry verdict implies an
// authentic token.
func classify(err error, purpose Purpose) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		if purpose == PurposeRefresh {
			return NewError(KindRefreshMalformed, err)
		}
		return NewError(KindSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return NewError(malformedKind(purpose), err)
	case errors.Is(err, jwt.ErrTokenExpired):
		if purpose == PurposeRefresh {
			return NewError(KindRefreshExpired, err)
		}
		return NewError(KindTokenExpired, err)
	default:
		return NewError(malformedKind(purpose), err)
	}
}

func malformedKind(purpose Purpose) Kind {
	if purpose == PurposeRefresh {
		return KindRefreshMalformed
	}
	return KindTokenMalformed
}
