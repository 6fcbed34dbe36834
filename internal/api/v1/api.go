package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/middleware"
)

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface represents all server handlers of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /health)
	GetHealth(c *fiber.Ctx) error
	// (GET /plans)
	GetPlans(c *fiber.Ctx) error
	// (POST /checkout)
	PostCheckout(c *fiber.Ctx) error
	// (GET /orders/{orderId})
	GetOrder(c *fiber.Ctx, orderId string) error
	// (GET /purchases)
	GetPurchases(c *fiber.Ctx) error
	// (GET /entitlement)
	GetEntitlement(c *fiber.Ctx) error
	// (GET /usage)
	GetUsage(c *fiber.Ctx) error
	// (POST /usage/consume)
	PostUsageConsume(c *fiber.Ctx) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

func (siw *ServerInterfaceWrapper) GetHealth(c *fiber.Ctx) error {
	return siw.Handler.GetHealth(c)
}

func (siw *ServerInterfaceWrapper) GetPlans(c *fiber.Ctx) error {
	return siw.Handler.GetPlans(c)
}

func (siw *ServerInterfaceWrapper) PostCheckout(c *fiber.Ctx) error {
	return siw.Handler.PostCheckout(c)
}

func (siw *ServerInterfaceWrapper) GetOrder(c *fiber.Ctx) error {
	orderId := c.Params("orderId")
	if orderId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": "orderId missing"})
	}
	return siw.Handler.GetOrder(c, orderId)
}

func (siw *ServerInterfaceWrapper) GetPurchases(c *fiber.Ctx) error {
	return siw.Handler.GetPurchases(c)
}

func (siw *ServerInterfaceWrapper) GetEntitlement(c *fiber.Ctx) error {
	return siw.Handler.GetEntitlement(c)
}

func (siw *ServerInterfaceWrapper) GetUsage(c *fiber.Ctx) error {
	return siw.Handler.GetUsage(c)
}

func (siw *ServerInterfaceWrapper) PostUsageConsume(c *fiber.Ctx) error {
	return siw.Handler.PostUsageConsume(c)
}

// RegisterHandlers mounts the v1 routes. Everything except ping, health and
// plans requires a trusted identity; usage/consume is metered by quota.
func RegisterHandlers(router fiber.Router, si ServerInterface, quota middleware.Consumer) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", wrapper.GetPing)
	router.Get("/health", wrapper.GetHealth)
	router.Get("/plans", wrapper.GetPlans)

	router.Post("/checkout", middleware.RequireAPIAuth, wrapper.PostCheckout)
	router.Get("/orders/:orderId", middleware.RequireAPIAuth, wrapper.GetOrder)
	router.Get("/purchases", middleware.RequireAPIAuth, wrapper.GetPurchases)
	router.Get("/entitlement", middleware.RequireAPIAuth, wrapper.GetEntitlement)
	router.Get("/usage", middleware.RequireAPIAuth, wrapper.GetUsage)
	router.Post("/usage/consume", middleware.RequireAPIAuth, middleware.RequireQuota(quota), wrapper.PostUsageConsume)
}
