package database

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// SetupDatabase connects with retries and migrates the schema.
func SetupDatabase(cfg *config.Config) {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = Open(cfg.Database.DSN(), cfg.IsDev())
		if err == nil {
			if err = AutoMigrate(DB); err != nil {
				log.Errorf("[Database] Auto migration failed: %v", err)
				panic(err)
			}
			return
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// Open returns a gorm handle for the given DSN. Every state transition runs
// as a single statement or an explicit transaction, so gorm's implicit
// per-write transaction is disabled.
func Open(dsn string, verbose bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if verbose {
		logLevel = logger.Info
	}
	return gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// AutoMigrate creates or updates the service tables. Production schemas are
// managed by cmd/migrate; this keeps development databases in sync.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UsageProfile{},
		&models.Purchase{},
		&models.PurchaseEvent{},
		&models.Subscription{},
		&models.BillingWebhookEvent{},
	)
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the shared handle, used by tests.
func SetDB(db *gorm.DB) {
	DB = db
}
