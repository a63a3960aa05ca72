package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/library-system/auth-service/internal/domain"
)

// Issuer mints access and refresh tokens for a subject.
type Issuer struct {
	signer          *Signer
	issuer          string
	accessDuration  time.Duration
	refreshDuration time.Duration
	now             Clock
}

// IssuerConfig carries the issuer name and token lifetimes.
type IssuerConfig struct {
	Issuer          string
	AccessDuration  time.Duration
	RefreshDuration time.Duration
}

// NewIssuer builds an Issuer. A nil clock means time.Now.
func NewIssuer(signer *Signer, cfg IssuerConfig, now Clock) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("issuer requires a signer")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer name is required")
	}
	if cfg.AccessDuration <= 0 || cfg.RefreshDuration <= 0 {
		return nil, errors.New("token durations must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		signer:          signer,
		issuer:          cfg.Issuer,
		accessDuration:  cfg.AccessDuration,
		refreshDuration: cfg.RefreshDuration,
		now:             now,
	}, nil
}

// Duration returns the configured lifetime for purpose.
func (i *Issuer) Duration(purpose Purpose) time.Duration {
	if purpose == PurposeRefresh {
		return i.refreshDuration
	}
	return i.accessDuration
}

// Issue signs a token for subject expiring after the purpose's duration.
// Every token gets a random jti so two mints never produce the same string.
func (i *Issuer) Issue(subject string, purpose Purpose) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.Duration(purpose)).Truncate(jwt.TimePrecision)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := i.signer.Sign(claims, purpose)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssuePair mints an access token and a refresh token for subject.
func (i *Issuer) IssuePair(subject string) (domain.TokenPair, error) {
	access, accessExp, err := i.Issue(subject, PurposeAccess)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshExp, err := i.Issue(subject, PurposeRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
