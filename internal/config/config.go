// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/fee"
	"github.com/iliamunaev/checkout-core/internal/model"
)

type Config struct {
	Port           string
	DatabaseURL    string // empty selects the in-memory store
	RequestTimeout time.Duration
	PublicBaseURL  string

	PaymentsBaseURL       string
	PaymentsAPIKey        string
	PaymentsWebhookSecret string

	FulfillmentBaseURL       string
	FulfillmentAPIKey        string
	FulfillmentWebhookSecret string
	FulfillmentWebhookURL    string
	FulfillmentRPS           float64

	MailBaseURL string
	MailAPIKey  string
	MailFrom    string

	KafkaBrokers []string
	KafkaTopic   string

	PlatformFeeEnabled        bool
	PlatformFeeBasisPoints    int
	PlatformFeeRequireAccount bool

	AsyncWorkers     int
	AsyncTaskTimeout time.Duration
}

// Load builds a Config from getenv, usually os.Getenv. Malformed values are
// errors; missing ones take defaults.
func Load(getenv func(string) string) (Config, error) {
	env := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	c := Config{
		Port:          env("PORT", "8080"),
		DatabaseURL:   env("DATABASE_URL", ""),
		PublicBaseURL: strings.TrimRight(env("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		PaymentsBaseURL:       env("PAYMENTS_BASE_URL", "https://api.stripe.com"),
		PaymentsAPIKey:        env("PAYMENTS_API_KEY", ""),
		PaymentsWebhookSecret: env("PAYMENTS_WEBHOOK_SECRET", ""),

		FulfillmentBaseURL:       env("FULFILLMENT_BASE_URL", "https://api.printful.com"),
		FulfillmentAPIKey:        env("FULFILLMENT_API_KEY", ""),
		FulfillmentWebhookSecret: env("FULFILLMENT_WEBHOOK_SECRET", ""),
		FulfillmentWebhookURL:    env("FULFILLMENT_WEBHOOK_URL", ""),

		MailBaseURL: env("MAIL_BASE_URL", "https://api.sendgrid.com"),
		MailAPIKey:  env("MAIL_API_KEY", ""),
		MailFrom:    env("MAIL_FROM", "orders@example.com"),

		KafkaBrokers: events.ParseBrokers(env("KAFKA_BROKERS", "")),
		KafkaTopic:   env("KAFKA_TOPIC", "order-events"),
	}

	var err error
	if c.RequestTimeout, err = millis(env("REQUEST_TIMEOUT_MS", "10000")); err != nil {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT_MS: %w", err)
	}
	if c.AsyncTaskTimeout, err = millis(env("ASYNC_TASK_TIMEOUT_MS", "30000")); err != nil {
		return Config{}, fmt.Errorf("ASYNC_TASK_TIMEOUT_MS: %w", err)
	}
	if c.AsyncWorkers, err = strconv.Atoi(env("ASYNC_WORKERS", "8")); err != nil {
		return Config{}, fmt.Errorf("ASYNC_WORKERS: %w", err)
	}
	if c.FulfillmentRPS, err = strconv.ParseFloat(env("FULFILLMENT_RPS", "2"), 64); err != nil || !(c.FulfillmentRPS >= 0) {
		return Config{}, fmt.Errorf("FULFILLMENT_RPS: invalid rate %q", env("FULFILLMENT_RPS", ""))
	}

	if c.PlatformFeeEnabled, err = strconv.ParseBool(env("PLATFORM_FEE_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("PLATFORM_FEE_ENABLED: %w", err)
	}
	if c.PlatformFeeRequireAccount, err = strconv.ParseBool(env("PLATFORM_FEE_REQUIRE_ACCOUNT", "true")); err != nil {
		return Config{}, fmt.Errorf("PLATFORM_FEE_REQUIRE_ACCOUNT: %w", err)
	}
	bps, err := strconv.Atoi(env("PLATFORM_FEE_BPS", strconv.Itoa(fee.DefaultBasisPoints)))
	if err != nil {
		return Config{}, fmt.Errorf("PLATFORM_FEE_BPS: %w", err)
	}
	if bps < 0 || bps > fee.MaxBasisPoints {
		return Config{}, fmt.Errorf("PLATFORM_FEE_BPS: %d outside 0..%d", bps, fee.MaxBasisPoints)
	}
	c.PlatformFeeBasisPoints = bps

	return c, nil
}

func millis(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// FeeDefaults returns the platform fee settings used when the store has none.
func (c Config) FeeDefaults() model.FeeSettings {
	return model.FeeSettings{
		Enabled:        c.PlatformFeeEnabled,
		BasisPoints:    c.PlatformFeeBasisPoints,
		RequireAccount: c.PlatformFeeRequireAccount,
	}
}

// PaymentsLive reports whether a real processor is configured.
func (c Config) PaymentsLive() bool { return c.PaymentsAPIKey != "" }

// FulfillmentLive reports whether a real provider is configured.
func (c Config) FulfillmentLive() bool { return c.FulfillmentAPIKey != "" }

// MailLive reports whether outbound email is configured.
func (c Config) MailLive() bool { return c.MailAPIKey != "" }
