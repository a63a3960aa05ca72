package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/library-system/auth-service/internal/domain"
)

// MemberLookup resolves a username to a live member. Implementations return
// domain.ErrMemberNotFound for unknown usernames.
type MemberLookup interface {
	GetByUsername(ctx context.Context, username string) (*domain.Member, error)
}

// Verifier validates presented tokens.
type Verifier struct {
	signer  *Signer
	members MemberLookup
}

// NewVerifier constructs a verifier.
func NewVerifier(signer *Signer, members MemberLookup) *Verifier {
	return &Verifier{signer: signer, members: members}
}

// VerifyAccess validates an access token and resolves its subject against the
// member store on every call, so a removed member loses access immediately.
func (v *Verifier) VerifyAccess(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := v.signer.Verify(token, PurposeAccess)
	if err != nil {
		return domain.Identity{}, err
	}
	member, err := v.members.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return domain.Identity{}, NewError(KindUnknownPrincipal, err)
		}
		return domain.Identity{}, fmt.Errorf("resolve access subject: %w", err)
	}
	return member.Identity(), nil
}

// VerifyRefresh validates a refresh token's signature and expiry and returns
// its subject. It does not consult the member store. An expired but authentic
// token yields its subject together with ErrRefreshExpired.
func (v *Verifier) VerifyRefresh(token string) (string, error) {
	claims, err := v.signer.Verify(token, PurposeRefresh)
	if claims == nil {
		return "", err
	}
	return claims.Subject, err
}

// Fingerprint is the server-side representation of a refresh token. Equal
// fingerprints mean byte-identical tokens.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
