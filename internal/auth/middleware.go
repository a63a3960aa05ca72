package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/observability"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

// Header names of the token transport contract.
const (
	HeaderRefreshToken    = "Refresh-Token"
	HeaderNewAccessToken  = "New-Access-Token"
	HeaderNewRefreshToken = "New-Refresh-Token"
)

const bearerScheme = "Bearer"

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (domain.Identity, error)
}

// SessionRotator exchanges a refresh token for a new session.
type SessionRotator interface {
	Rotate(ctx context.Context, refreshToken string) (domain.Session, error)
}

// Middleware authenticates requests under the protected prefix.
type Middleware struct {
	verifier AccessVerifier
	sessions SessionRotator
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewMiddleware constructs middleware.
func NewMiddleware(verifier AccessVerifier, sessions SessionRotator, logger *zap.Logger, metrics *observability.Metrics) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{verifier: verifier, sessions: sessions, logger: logger, metrics: metrics}
}

// Handle verifies the bearer access token when one is present. Requests
// without a token continue unauthenticated; route guards decide access. An
// expired access token is exchanged once through the refresh token header.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		m.metrics.RecordAccessCheck("anonymous")
		return c.Next()
	}

	identity, err := m.verifier.VerifyAccess(c.UserContext(), token)
	if err == nil {
		m.metrics.RecordAccessCheck("ok")
		attachIdentity(c, identity)
		return c.Next()
	}

	kind := KindOf(err)
	m.metrics.RecordAccessCheck(kind.String())

	switch kind {
	case KindTokenExpired:
		return m.refresh(c)
	case KindInternal:
		m.logger.Error("access token verification failed", zap.Error(err))
		return apperrors.NewInternalError(err)
	default:
		m.logger.Warn("access token rejected", zap.String("kind", kind.String()), zap.String("path", c.Path()))
		return apperrors.NewUnauthorized("invalid access token")
	}
}

func (m *Middleware) refresh(c *fiber.Ctx) error {
	refreshToken := strings.TrimSpace(c.Get(HeaderRefreshToken))
	if refreshToken == "" {
		return apperrors.NewUnauthorized("access token expired")
	}

	session, err := m.sessions.Rotate(c.UserContext(), refreshToken)
	if err != nil {
		kind := KindOf(err)
		if kind == KindInternal {
			m.logger.Error("transparent refresh failed", zap.Error(err))
		} else {
			m.logger.Warn("transparent refresh rejected", zap.String("kind", kind.String()))
		}
		return apperrors.NewUnauthorized("access and refresh tokens are invalid")
	}

	c.Set(HeaderNewAccessToken, session.Tokens.AccessToken)
	c.Set(HeaderNewRefreshToken, session.Tokens.RefreshToken)
	attachIdentity(c, session.Identity)
	return c.Next()
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
