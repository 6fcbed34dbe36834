package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/usercontext"
)

// UserLookup resolves the user named by the trusted header.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// TrustedIdentity reads the caller from X-User-ID when the request also
// carries the shared internal token. Requests without both headers continue
// as anonymous. An empty token trusts nobody.
func TrustedIdentity(token string, users UserLookup) fiber.Handler {
	token = strings.TrimSpace(token)
	if token == "" {
		log.Warn("[Auth] INTERNAL_API_TOKEN is empty, identity headers will be ignored")
	}
	return func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{})

		rawID := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
		presented := strings.TrimSpace(c.Get(usercontext.HeaderInternalToken))
		if rawID == "" || presented == "" || token == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			log.Warnf("[Auth] Rejected identity header from %s: bad internal token", c.IP())
			return c.Next()
		}

		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": "invalid X-User-ID"})
		}

		user, err := users.GetByID(uint(id))
		if err != nil || user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "unknown user"})
		}
		if !user.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "user inactive"})
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			Email:      user.Email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAPIAuth ensures an identified caller and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "identity required",
		})
	}
	return c.Next()
}
