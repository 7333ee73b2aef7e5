package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	BaseURL     string `env:"BASE_URL,required" validate:"required,url"`
	ShopName    string `env:"SHOP_NAME" envDefault:"Matcha Leaf"`
	CatalogPath string `env:"CATALOG_PATH"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string `env:"STRIPE_API_URL" validate:"omitempty,url"`

	CarrierMode      string `env:"CARRIER_MODE" envDefault:"mock" validate:"oneof=mock live"`
	CarrierAPIURL    string `env:"CARRIER_API_URL" validate:"required_if=CarrierMode live,omitempty,url"`
	CarrierAppID     string `env:"CARRIER_APP_ID"`
	CarrierAppSecret string `env:"CARRIER_APP_SECRET"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=postmark resend"`
	EmailAPIKey   string `env:"EMAIL_API_KEY" validate:"required_with=EmailProvider"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_with=EmailProvider,omitempty,email"`
	NotifyEmail   string `env:"SHOP_NOTIFY_EMAIL" validate:"omitempty,email"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	AdminJWTSecret     string   `env:"ADMIN_JWT_SECRET"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	AutoFulfillPaid         bool          `env:"AUTO_FULFILL_PAID" envDefault:"false"`
	FulfillmentWorkers      int           `env:"FULFILLMENT_WORKERS" envDefault:"2" validate:"gte=1,lte=32"`
	FulfillmentMaxAttempts  int           `env:"FULFILLMENT_MAX_ATTEMPTS" envDefault:"5" validate:"gte=1,lte=20"`
	FulfillmentRetryBackoff time.Duration `env:"FULFILLMENT_RETRY_BACKOFF" envDefault:"2s" validate:"gt=0"`

	StatusPollInterval    time.Duration `env:"STATUS_POLL_INTERVAL" envDefault:"2s" validate:"gt=0"`
	StatusPollMaxAttempts int           `env:"STATUS_POLL_MAX_ATTEMPTS" envDefault:"15" validate:"gte=1,lte=120"`

	SentryDSN              string  `env:"SENTRY_DSN"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasAppID := strings.TrimSpace(c.CarrierAppID) != ""
	hasAppSecret := strings.TrimSpace(c.CarrierAppSecret) != ""
	if hasAppID != hasAppSecret {
		return fmt.Errorf("CARRIER_APP_ID and CARRIER_APP_SECRET must be set together")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	for _, origin := range c.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS entry %q must be an origin such as https://shop.example", origin)
		}
	}

	return nil
}

// CardPaymentsEnabled reports whether hosted card checkout can be offered.
func (c *Config) CardPaymentsEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

// WebhookVerificationEnabled is false in the degraded mode where payment
// events are accepted without a signature check.
func (c *Config) WebhookVerificationEnabled() bool {
	return strings.TrimSpace(c.StripeWebhookSecret) != ""
}

func (c *Config) AdminAPIEnabled() bool {
	return strings.TrimSpace(c.AdminJWTSecret) != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
