package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/env"
)

const (
	ProviderStripe  = "stripe"
	ProviderSandbox = "sandbox"

	CheckoutModePaymentIntent   = "payment_intent"
	CheckoutModeCheckoutSession = "checkout_session"
)

// Config is read once at process start and handed to the services that need
// it. Nothing below the HTTP layer reads the environment directly.
type Config struct {
	AppEnv           string         `validate:"oneof=dev test prod"`
	Host             string         `validate:"required"`
	Port             string         `validate:"required,numeric"`
	SiteURL          string         `validate:"omitempty,url"`
	Location         *time.Location `validate:"-"`
	FreeUsageLimit   int            `validate:"gte=0"`
	JobQueueWorkers  int            `validate:"gte=1,lte=64"`
	APIRateLimit     int            `validate:"gte=0"`
	InternalAPIToken string

	Plans    PlanPrices
	Payment  PaymentConfig
	Database DatabaseConfig
	Cache    CacheConfig
	SMTP     SMTPConfig
	Archive  ArchiveConfig
}

// PlanPrices holds the configured price per plan in major currency units.
type PlanPrices struct {
	Monthly decimal.Decimal `validate:"-"`
	Yearly  decimal.Decimal `validate:"-"`
}

type PaymentConfig struct {
	Provider             string        `validate:"oneof=stripe sandbox"`
	Currency             string        `validate:"required,len=3,lowercase"`
	Timeout              time.Duration `validate:"gt=0"`
	StripeSecretKey      string        `validate:"required_if=Provider stripe"`
	StripePublishableKey string
	StripeWebhookSecret  string `validate:"required_if=Provider stripe"`
	StripeCheckoutMode   string `validate:"oneof=payment_intent checkout_session"`
	SandboxWebhookSecret string `validate:"required_if=Provider sandbox"`
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Name     string
}

// DSN returns the go-sql-driver/mysql data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

// Addr returns host:port for the redis client.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// Enabled reports whether outbound mail is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Port != ""
}

type ArchiveConfig struct {
	Bucket          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Enabled reports whether raw webhook payloads are archived to S3.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" && a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// Price returns the configured price for a plan type.
func (p PlanPrices) Price(planType string) (decimal.Decimal, bool) {
	switch planType {
	case "monthly":
		return p.Monthly, true
	case "yearly":
		return p.Yearly, true
	default:
		return decimal.Zero, false
	}
}

// Load builds the configuration from the loaded .env map and the process
// environment.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           strings.ToLower(env.GetEnv("APP_ENV", "prod")),
		Host:             env.GetEnv("APP_HOST", "localhost"),
		Port:             env.GetEnv("APP_PORT", "4000"),
		SiteURL:          strings.TrimRight(env.GetEnv("SITE_URL", ""), "/"),
		InternalAPIToken: env.GetEnv("INTERNAL_API_TOKEN", ""),
		Payment: PaymentConfig{
			Provider:             strings.ToLower(env.GetEnv("PAYMENT_PROVIDER", ProviderStripe)),
			Currency:             strings.ToLower(env.GetEnv("PAYMENT_CURRENCY", "usd")),
			StripeSecretKey:      env.GetEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: env.GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
			StripeWebhookSecret:  env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			StripeCheckoutMode:   strings.ToLower(env.GetEnv("STRIPE_CHECKOUT_MODE", CheckoutModePaymentIntent)),
			SandboxWebhookSecret: env.GetEnv("SANDBOX_WEBHOOK_SECRET", ""),
		},
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", ""),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", ""),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   env.GetEnv("SMTP_SENDER", ""),
		},
		Archive: ArchiveConfig{
			Bucket:          env.GetEnv("ARCHIVE_S3_BUCKET", ""),
			Region:          env.GetEnv("ARCHIVE_S3_REGION", "us-east-1"),
			EndpointURL:     env.GetEnv("ARCHIVE_S3_ENDPOINT_URL", ""),
			AccessKeyID:     env.GetEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          strings.Trim(env.GetEnv("ARCHIVE_S3_PREFIX", "webhooks"), "/"),
		},
	}

	var err error
	if cfg.FreeUsageLimit, err = intEnv("FREE_USAGE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.JobQueueWorkers, err = intEnv("JOBQUEUE_WORKERS", 3); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = intEnv("API_RATE_LIMIT", 120); err != nil {
		return nil, err
	}
	if cfg.Plans.Monthly, err = decimalEnv("MONTHLY_PLAN_PRICE", "20.00"); err != nil {
		return nil, err
	}
	if cfg.Plans.Yearly, err = decimalEnv("YEARLY_PLAN_PRICE", "100.00"); err != nil {
		return nil, err
	}
	if cfg.Payment.Timeout, err = time.ParseDuration(env.GetEnv("PAYMENT_PROVIDER_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_PROVIDER_TIMEOUT: %w", err)
	}
	if cfg.Location, err = time.LoadLocation(env.GetEnv("APP_TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.Plans.Monthly.IsPositive() || !c.Plans.Yearly.IsPositive() {
		return errors.New("invalid configuration: plan prices must be positive")
	}
	if c.Plans.Monthly.Exponent() < -2 || c.Plans.Yearly.Exponent() < -2 {
		return errors.New("invalid configuration: plan prices support at most two decimal places")
	}
	if c.Location == nil {
		return errors.New("invalid configuration: timezone is required")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func decimalEnv(key, def string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(env.GetEnv(key, def))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
