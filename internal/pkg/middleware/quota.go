package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/entitlements"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/usercontext"
)

// Consumer counts one use of the metered feature.
type Consumer interface {
	Consume(ctx context.Context, userID uint) (bool, *entitlements.Status, error)
}

// RequireQuota counts the request against the caller's daily quota and stops
// it with 402 once the free limit is used up. The usage snapshot is left in
// Locals for the handler.
func RequireQuota(consumer Consumer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, st, err := consumer.Consume(c.UserContext(), usercontext.GetUserID(c))
		if err != nil {
			return c.Status(apperror.HTTPStatus(err)).JSON(fiber.Map{
				"error":   apperror.Code(err),
				"message": "usage check failed",
			})
		}
		c.Locals(usercontext.KeyUsage, st)
		if !allowed {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "quota_exhausted",
				"message": "daily free limit reached, subscribe for unlimited access",
				"usage":   st,
			})
		}
		return c.Next()
	}
}
