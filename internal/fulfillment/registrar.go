package fulfillment

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WebhookEvents are the provider event types we subscribe to.
var WebhookEvents = []string{
	"package_shipped",
	"package_returned",
	"order_created",
	"order_updated",
	"order_failed",
	"order_canceled",
	"order_put_hold",
	"order_refunded",
}

type webhookSetter interface {
	SetWebhook(ctx context.Context, url string, types []string) error
}

// Registrar registers the provider webhook at most once per TTL. Concurrent
// callers wait for the in-flight registration instead of issuing their own.
type Registrar struct {
	mu     sync.Mutex
	client webhookSetter
	url    string
	ttl    time.Duration
	last   time.Time
	now    func() time.Time
	log    *slog.Logger
}

// NewRegistrar returns a Registrar. An empty url disables registration.
func NewRegistrar(client webhookSetter, url string, ttl time.Duration, log *slog.Logger) *Registrar {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registrar{client: client, url: url, ttl: ttl, now: time.Now, log: log}
}

// Ensure registers the webhook unless a registration succeeded within TTL.
// A failed registration is retried by the next caller.
func (r *Registrar) Ensure(ctx context.Context) error {
	if r == nil || r.url == "" || r.client == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() && r.now().Sub(r.last) < r.ttl {
		return nil
	}
	if err := r.client.SetWebhook(ctx, r.url, WebhookEvents); err != nil {
		r.log.WarnContext(ctx, "fulfillment webhook registration failed", "url", r.url, "err", err)
		return err
	}
	r.last = r.now()
	r.log.InfoContext(ctx, "fulfillment webhook registered", "url", r.url)
	return nil
}
