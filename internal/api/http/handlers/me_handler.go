package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/library-system/auth-service/internal/api/dto"
	"github.com/library-system/auth-service/internal/auth"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

// MeHandler returns the caller's identity.
type MeHandler struct{}

// NewMeHandler constructs handler.
func NewMeHandler() *MeHandler {
	return &MeHandler{}
}

// Get handles GET /api/me. The identity is read from the request context,
// the same way business handlers receive it.
func (h *MeHandler) Get(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c.UserContext())
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.IdentityResponse{
		Username: identity.Username,
		Role:     identity.Role,
	}})
}
