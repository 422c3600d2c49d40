// Package app wires the checkout core from a Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliamunaev/checkout-core/internal/async"
	"github.com/iliamunaev/checkout-core/internal/config"
	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/fee"
	"github.com/iliamunaev/checkout-core/internal/fulfillment"
	"github.com/iliamunaev/checkout-core/internal/metrics"
	"github.com/iliamunaev/checkout-core/internal/notify"
	"github.com/iliamunaev/checkout-core/internal/order"
	"github.com/iliamunaev/checkout-core/internal/payments"
	"github.com/iliamunaev/checkout-core/internal/shipping"
	"github.com/iliamunaev/checkout-core/internal/store"
	"github.com/iliamunaev/checkout-core/internal/store/memory"
	"github.com/iliamunaev/checkout-core/internal/store/postgres"
	"github.com/iliamunaev/checkout-core/internal/tax"
	httptransport "github.com/iliamunaev/checkout-core/internal/transport/http"
	"github.com/iliamunaev/checkout-core/internal/webhook"
)

const clientTimeout = 15 * time.Second

// fulfillmentProvider is what the live client and the mock both offer.
type fulfillmentProvider interface {
	shipping.RateQuoter
	CreateOrder(ctx context.Context, req fulfillment.OrderRequest) (fulfillment.OrderResult, error)
	SetWebhook(ctx context.Context, url string, types []string) error
}

type App struct {
	Store     store.Store
	Payments  payments.Processor
	Metrics   *metrics.Metrics
	Runner    *async.Runner
	Checkout  *order.Service
	Webhooks  *webhook.Reconciler
	Router    http.Handler
	Publisher events.Publisher

	RequestTimeout time.Duration

	closers []func()
}

// New builds every component. Without DATABASE_URL the in-memory store is
// used; without provider keys the in-process mocks are.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	a := &App{RequestTimeout: cfg.RequestTimeout}

	var health func(*http.Request) error
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Store = pg
		a.closers = append(a.closers, pg.Close)
		health = func(r *http.Request) error { return pg.Ping(r.Context()) }
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		a.Store = memory.New()
	}

	hc := &http.Client{Timeout: clientTimeout}

	if cfg.PaymentsLive() {
		a.Payments = payments.NewHTTPClient(cfg.PaymentsBaseURL, cfg.PaymentsAPIKey, hc, log.With("component", "payments"))
	} else {
		log.Warn("payments API key not set, using mock processor")
		a.Payments = payments.NewMock()
	}

	var provider fulfillmentProvider
	if cfg.FulfillmentLive() {
		provider = fulfillment.NewClient(cfg.FulfillmentBaseURL, cfg.FulfillmentAPIKey, cfg.FulfillmentRPS, hc)
	} else {
		log.Warn("fulfillment API key not set, using mock provider")
		provider = &fulfillment.Mock{FlatRateCents: 500}
	}

	var mailer notify.Mailer = notify.LogMailer{Log: log}
	if cfg.MailLive() {
		mailer = notify.NewHTTPMailer(cfg.MailBaseURL, cfg.MailAPIKey, cfg.MailFrom, hc)
	}

	a.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.Publisher = k
		a.closers = append(a.closers, func() {
			if err := k.Close(); err != nil {
				log.Error("close kafka writer", "err", err)
			}
		})
	}

	a.Metrics = metrics.New(prometheus.NewRegistry())
	a.Runner = async.New(cfg.AsyncWorkers, cfg.AsyncTaskTimeout, a.Metrics, log.With("component", "async"))

	fees := fee.NewResolver(a.Store, a.Payments, cfg.FeeDefaults(), log.With("component", "fee"))
	a.Checkout = order.New(order.Deps{
		Store:    a.Store,
		Shipping: shipping.NewResolver(provider, log.With("component", "shipping")),
		Tax:      tax.NewAdapter(a.Payments, log.With("component", "tax")),
		Fees:     fees,
		Payments: a.Payments,
		Observer: a.Metrics,
		Log:      log.With("component", "checkout"),
	})

	registrar := fulfillment.NewRegistrar(provider, cfg.FulfillmentWebhookURL, 0, log.With("component", "fulfillment"))
	dispatcher := fulfillment.NewDispatcher(a.Store, provider, registrar, a.Publisher, log.With("component", "fulfillment"))
	fanout := notify.New(a.Store, mailer, a.Publisher, log.With("component", "notify"))

	a.Webhooks = webhook.New(webhook.Deps{
		Store:             a.Store,
		Dispatcher:        dispatcher,
		Notifier:          fanout,
		Runner:            a.Runner,
		Events:            a.Publisher,
		Observer:          a.Metrics,
		Log:               log.With("component", "webhook"),
		PaymentSecret:     cfg.PaymentsWebhookSecret,
		FulfillmentSecret: cfg.FulfillmentWebhookSecret,
	})

	h := httptransport.New(httptransport.Deps{
		Checkout:       a.Checkout,
		Webhooks:       a.Webhooks,
		Orders:         a.Store,
		Dispatcher:     a.Webhooks,
		Accounts:       fees,
		PublicBaseURL:  cfg.PublicBaseURL,
		RequestTimeout: cfg.RequestTimeout,
	})
	a.Router = httptransport.NewRouter(h, httptransport.RouterOptions{
		Log:      log,
		Requests: a.Metrics,
		Metrics:  a.Metrics.Handler(),
		Health:   health,
	})
	return a, nil
}

// Close waits for in-flight side effects, then releases the store and the
// event writer. Tasks still running when ctx ends are abandoned.
func (a *App) Close(ctx context.Context) error {
	err := a.Runner.Wait(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err != nil {
		return fmt.Errorf("wait for async tasks: %w", err)
	}
	return nil
}
