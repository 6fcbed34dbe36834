package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/MoodTunes/app/controllers"
	"github.com/ManuelReschke/MoodTunes/app/repository"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/archive"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/cache"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/database"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/entitlements"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/env"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/mail"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/quota"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	app, shutdown := NewApplication(cfg)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	err = app.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires storage, billing, entitlements and the job queue into
// a fiber app. The returned func stops the background workers.
func NewApplication(cfg *config.Config) (*fiber.App, func()) {
	database.SetupDatabase(cfg)
	cache.SetupCache(cfg.Cache)
	db := database.GetDB()

	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	billingRepo := billing.NewRepository(db)

	gateway, err := payment.NewGatewayFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// side effects
	queue := jobqueue.NewQueue(cache.GetClient(), cfg.JobQueueWorkers)
	mailer := mail.NewMailer(cfg.SMTP, nil)

	var archiveClient *archive.Client
	if cfg.Archive.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archiveClient, err = archive.NewClient(ctx, cfg.Archive)
		cancel()
		if err != nil {
			log.Printf("Webhook archive disabled: %v", err)
			archiveClient = nil
		}
	}

	notifier := jobqueue.NewBillingNotifier(queue, mailer.Enabled(), archiveClient != nil)
	svc := billing.NewService(billingRepo, gateway, billing.Options{
		Prices:          cfg.Plans,
		Currency:        cfg.Payment.Currency,
		ProviderTimeout: cfg.Payment.Timeout,
		Notifier:        notifier,
	})

	emails := jobqueue.NewEmailProcessor(mailer, repos.User, svc)
	queue.Handle(jobqueue.JobTypeSubscriptionActivatedEmail, emails.SubscriptionActivated)
	queue.Handle(jobqueue.JobTypePaymentFailedEmail, emails.PaymentFailed)

	var backlog jobqueue.WebhookBacklog
	if archiveClient != nil {
		queue.Handle(jobqueue.JobTypeArchiveWebhookPayload, jobqueue.NewArchiveProcessor(billingRepo, archiveClient).Process)
		backlog = billingRepo
	}
	manager := jobqueue.NewManager(queue, backlog)
	manager.Start()

	// entitlements
	tracker := quota.NewTracker(repos.UsageProfile, cfg.Location)
	resolver := entitlements.NewResolver(tracker, repos.Subscription, cfg.FreeUsageLimit)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if docs := findDocs(); docs != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docs,
			Path:     "v1",
		}))
	}

	limiterStorage := router.NewLimiterStorage(cfg.Cache)

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:      controllers.NewBillingController(svc),
		Entitlements: controllers.NewEntitlementController(resolver),
		Health: controllers.NewHealthController(
			controllers.HealthCheck{Name: "database", Check: pingDatabase, Required: true},
			controllers.HealthCheck{Name: "cache", Check: cache.Ping},
			controllers.HealthCheck{Name: "jobqueue", Check: manager.Health},
		),
		Quota:          resolver,
		Users:          repos.User,
		InternalToken:  cfg.InternalAPIToken,
		LimiterStorage: limiterStorage,
		LimiterMax:     cfg.APIRateLimit,
	})

	shutdown := func() {
		manager.Stop()
		if err := limiterStorage.Close(); err != nil {
			log.Printf("Limiter storage close error: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, shutdown
}

func pingDatabase(ctx context.Context) error {
	sqlDB, err := database.GetDB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// findDocs looks for the OpenAPI file from the project root or from cmd/moodtunes.
func findDocs() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	log.Println("OpenAPI file not found, /docs/api disabled")
	return ""
}
