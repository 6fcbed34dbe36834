package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	billing      *controllers.BillingController
	entitlements *controllers.EntitlementController
	health       *controllers.HealthController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController, entitlements *controllers.EntitlementController, health *controllers.HealthController) *APIServer {
	return &APIServer{billing: billing, entitlements: entitlements, health: health}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) GetHealth(c *fiber.Ctx) error {
	return s.health.HandleHealth(c)
}

func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return s.billing.HandlePlans(c)
}

// PostCheckout starts a purchase for the trusted user.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return s.billing.HandleCheckout(c)
}

// GetOrder returns an order of the trusted user.
// Controller reads orderId from route params; wrapper already checked it.
func (s *APIServer) GetOrder(c *fiber.Ctx, orderId string) error {
	return s.billing.HandleOrderStatus(c)
}

func (s *APIServer) GetPurchases(c *fiber.Ctx) error {
	return s.billing.HandlePurchases(c)
}

func (s *APIServer) GetEntitlement(c *fiber.Ctx) error {
	return s.entitlements.HandleEntitlement(c)
}

func (s *APIServer) GetUsage(c *fiber.Ctx) error {
	return s.entitlements.HandleUsage(c)
}

// PostUsageConsume runs after RequireQuota counted the use.
func (s *APIServer) PostUsageConsume(c *fiber.Ctx) error {
	return s.entitlements.HandleConsume(c)
}
