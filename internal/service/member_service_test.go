package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/repository"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

func newTestHasher(t *testing.T) *auth.BcryptHasher {
	t.Helper()
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return hasher
}

func TestRegisterHashesPassword(t *testing.T) {
	members := repository.NewMemoryMemberRepository()
	svc := NewMemberService(members, newTestHasher(t), nil)

	member, err := svc.Register(context.Background(), "  carol ", "long-enough", domain.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "carol", member.Username)
	require.NotEqual(t, "long-enough", member.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte("long-enough")))
}

func TestRegisterValidation(t *testing.T) {
	svc := NewMemberService(repository.NewMemoryMemberRepository(), newTestHasher(t), nil)

	_, err := svc.Register(context.Background(), "", "short", domain.Role("LIBRARIAN"))
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, apperrors.CodeValidationFailed, domainErr.Code)
	require.Contains(t, domainErr.Details, "username")
	require.Contains(t, domainErr.Details, "password")
	require.Contains(t, domainErr.Details, "role")
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	members := repository.NewMemoryMemberRepository()
	svc := NewMemberService(members, newTestHasher(t), nil)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "", ""))
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "admin-password"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "different-password"))

	member, err := members.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, member.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte("admin-password")))
}
