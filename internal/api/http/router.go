package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/library-system/auth-service/internal/api/http/handlers"
	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	ProtectedPrefix string
	Health          *handlers.HealthHandler
	Auth            *handlers.AuthHandler
	Me              *handlers.MeHandler
	Admin           *handlers.AdminHandler
	AuthMiddleware  *auth.Middleware
	Metrics         fiber.Handler
}

// RegisterRoutes wires HTTP routes. The public auth endpoints are registered
// before the protected group so the token middleware never runs for them.
// Everything else under the prefix needs an identity; admin routes need ADMIN.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	prefix := cfg.ProtectedPrefix
	if prefix == "" {
		prefix = "/api"
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	public := app.Group(prefix + "/auth")
	public.Post("/login", cfg.Auth.Login)
	public.Post("/logout", cfg.Auth.Logout)

	protected := app.Group(prefix, cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Get("/me", cfg.Me.Get)

	admin := protected.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Delete("/sessions/:username", cfg.Admin.RevokeSession)
}
