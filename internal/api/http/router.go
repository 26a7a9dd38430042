package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Webhooks       *handlers.WebhookHandler
	Admin          *handlers.AdminHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Throttle       fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	throttle := cfg.Throttle
	if throttle == nil {
		throttle = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api")
	api.Post("/tito-webhook", cfg.Webhooks.Receive)

	admin := api.Group("/admin")
	admin.Post("/login", throttle, cfg.Admin.Login)
	adminOnly := admin.Group("", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	adminOnly.Post("/logout", cfg.Admin.Logout)
	adminOnly.Get("/tickets", cfg.Admin.ListTickets)
	adminOnly.Get("/tickets/:ticketId", cfg.Admin.GetTicket)
	adminOnly.Delete("/tickets/:ticketId", cfg.Admin.DeleteTicket)
	adminOnly.Post("/sync", cfg.Admin.TriggerSync)

	user := api.Group("/user")
	user.Post("/register", throttle, cfg.Users.Register)
	user.Post("/login", throttle, cfg.Users.Login)
	user.Post("/forgot-password", throttle, cfg.Users.ForgotPassword)
	user.Post("/reset-password", throttle, cfg.Users.ResetPassword)
	user.Get("/verify-email/:token", throttle, cfg.Users.VerifyEmail)
	user.Post("/email/verification-notification", throttle, cfg.Users.ResendVerification)
	userOnly := user.Group("", cfg.AuthMiddleware.Handle, auth.RequireUser())
	userOnly.Get("/profile", cfg.Users.Profile)
	userOnly.Get("/tickets/:ticketId", cfg.Users.GetTicket)
	userOnly.Post("/logout", cfg.Users.Logout)
}
