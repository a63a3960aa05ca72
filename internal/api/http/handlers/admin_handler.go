package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/library-system/auth-service/internal/auth"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

// SessionRevoker ends a member's session.
type SessionRevoker interface {
	Revoke(ctx context.Context, username, revokedBy string) error
}

// AdminHandler exposes administrative session operations.
type AdminHandler struct {
	sessions SessionRevoker
}

// NewAdminHandler constructs handler.
func NewAdminHandler(sessions SessionRevoker) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

// RevokeSession handles DELETE /api/admin/sessions/:username.
func (h *AdminHandler) RevokeSession(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.Params("username"))
	if username == "" {
		return apperrors.NewValidationError("username required", nil)
	}

	actor, _ := auth.IdentityFromFiber(c)
	if err := h.sessions.Revoke(c.UserContext(), username, actor.Username); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
