package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/repository"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

const minPasswordLength = 8

// MemberService creates members with hashed credentials.
type MemberService struct {
	members repository.MemberRepository
	hasher  auth.PasswordHasher
	logger  *zap.Logger
}

// NewMemberService builds the service.
func NewMemberService(members repository.MemberRepository, hasher auth.PasswordHasher, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberService{members: members, hasher: hasher, logger: logger}
}

// Register creates a member with the given role.
func (s *MemberService) Register(ctx context.Context, username, password string, role domain.Role) (*domain.Member, error) {
	username = strings.TrimSpace(username)
	details := map[string]any{}
	if username == "" {
		details["username"] = "required"
	}
	if len(password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if !role.Valid() {
		details["role"] = "must be USER or ADMIN"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid member", details)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	member := &domain.Member{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// EnsureAdmin creates the bootstrap administrator unless a member with that
// username already exists. An empty username disables bootstrapping.
func (s *MemberService) EnsureAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	_, err := s.Register(ctx, username, password, domain.RoleAdmin)
	switch {
	case err == nil:
		s.logger.Info("bootstrap admin created", zap.String("username", username))
		return nil
	case errors.Is(err, domain.ErrMemberExists):
		s.logger.Debug("bootstrap admin already present", zap.String("username", username))
		return nil
	default:
		return err
	}
}
