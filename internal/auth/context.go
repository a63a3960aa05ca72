package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/library-system/auth-service/internal/domain"
)

type identityCtxKey struct{}

const identityLocalsKey = "auth_identity"

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity)
}

// IdentityFromContext retrieves the authenticated identity from ctx.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey{}).(domain.Identity)
	return identity, ok
}

// IdentityFromFiber retrieves the identity attached by the middleware.
func IdentityFromFiber(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityLocalsKey).(domain.Identity)
	return identity, ok
}

func attachIdentity(c *fiber.Ctx, identity domain.Identity) {
	c.Locals(identityLocalsKey, identity)
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
}
