package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HealthCheck checks one dependency. Only required checks turn the
// response into a 503.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Required bool
}

type HealthController struct {
	checks []HealthCheck
}

func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks}
}

func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := fiber.StatusOK
	components := fiber.Map{}
	for _, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			log.Warnf("[Health] %s check failed: %v", check.Name, err)
			components[check.Name] = "down"
			if check.Required {
				status = "down"
				code = fiber.StatusServiceUnavailable
			} else if status == "ok" {
				status = "degraded"
			}
			continue
		}
		components[check.Name] = "ok"
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "components": components})
}
