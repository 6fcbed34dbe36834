package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MoodTunes/app/controllers"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired controllers and middleware inputs shared by the
// routers.
type Dependencies struct {
	Billing       *controllers.BillingController
	Entitlements  *controllers.EntitlementController
	Health        *controllers.HealthController
	Quota         middleware.Consumer
	Users         middleware.UserLookup
	InternalToken string
	// LimiterStorage backs the /api rate limiter. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// LimiterMax is the per client request budget per minute. Zero disables
	// the limiter.
	LimiterMax int
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the identity middleware the API routes rely on, so
	// it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
