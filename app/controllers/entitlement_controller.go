package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/entitlements"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/usercontext"
)

// EntitlementController answers access and usage questions for the caller.
type EntitlementController struct {
	resolver *entitlements.Resolver
}

func NewEntitlementController(resolver *entitlements.Resolver) *EntitlementController {
	return &EntitlementController{resolver: resolver}
}

// HandleEntitlement reports whether the caller has unlimited access.
func (ec *EntitlementController) HandleEntitlement(c *fiber.Ctx) error {
	st, err := ec.resolver.Status(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Failed to resolve entitlement")
	}
	return c.JSON(fiber.Map{
		"unlimited":  st.Unlimited,
		"plan":       st.Plan,
		"expires_at": st.ExpiresAt,
	})
}

// HandleUsage returns today's usage snapshot.
func (ec *EntitlementController) HandleUsage(c *fiber.Ctx) error {
	st, err := ec.resolver.Status(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Failed to load usage")
	}
	return c.JSON(st)
}

// HandleConsume runs behind RequireQuota, which already counted the use.
func (ec *EntitlementController) HandleConsume(c *fiber.Ctx) error {
	if st, ok := c.Locals(usercontext.KeyUsage).(*entitlements.Status); ok && st != nil {
		return c.JSON(st)
	}
	return ec.HandleUsage(c)
}
