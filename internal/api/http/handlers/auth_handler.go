package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/library-system/auth-service/internal/api/dto"
	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

// SessionManager is the part of the session service the auth endpoints use.
type SessionManager interface {
	Login(ctx context.Context, username, password string) (domain.Session, error)
	Logout(ctx context.Context, refreshToken string)
}

// AuthHandler exposes login and logout.
type AuthHandler struct {
	sessions SessionManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(sessions SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}

	session, err := h.sessions.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if auth.KindOf(err) == auth.KindInvalidCredentials {
			return apperrors.NewUnauthorized("invalid username or password")
		}
		return apperrors.NewInternalError(err)
	}

	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(session.Tokens)})
}

// Logout handles POST /api/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Get(auth.HeaderRefreshToken))
	if token == "" {
		var req dto.LogoutRequest
		if err := c.BodyParser(&req); err == nil {
			token = strings.TrimSpace(req.RefreshToken)
		}
	}
	if token != "" {
		h.sessions.Logout(c.UserContext(), token)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"logged_out": true}})
}
