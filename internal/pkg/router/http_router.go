package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Resolve the trusted identity for every request
	app.Use(middleware.TrustedIdentity(h.deps.InternalToken, h.deps.Users))

	app.Get("/health", h.deps.Health.HandleHealth)

	// Provider webhooks: no identity, signature verified in the controller
	app.Post("/webhook/:provider", h.deps.Billing.HandleWebhook)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
