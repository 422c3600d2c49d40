package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/lifecycle"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// ErrNotEligible is returned for orders that are unpaid or do not ship.
var ErrNotEligible = apperr.New(http.StatusConflict, "fulfillment_not_eligible", "order is not paid or does not require shipping")

// Store is what dispatch reads and patches.
type Store interface {
	Order(ctx context.Context, key store.Key) (model.Order, error)
	OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
	PatchOrder(ctx context.Context, key store.Key, fn store.OrderMutation) (model.Order, bool, error)
}

type orderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Dispatcher submits paid shipping orders to the provider.
type Dispatcher struct {
	store     Store
	provider  orderCreator
	registrar *Registrar
	events    events.Publisher
	log       *slog.Logger
}

// NewDispatcher returns a Dispatcher. registrar and pub may be nil.
func NewDispatcher(s Store, p orderCreator, registrar *Registrar, pub events.Publisher, log *slog.Logger) *Dispatcher {
	if s == nil || p == nil {
		panic("fulfillment: nil dependency")
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{store: s, provider: p, registrar: registrar, events: pub, log: log}
}

// Dispatch submits orderID to the provider. Orders already submitted and
// orders with no provider-mapped items are skipped without error. A provider
// failure leaves the order untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string) error {
	log := d.log.With("order_id", orderID, "step", "dispatch")

	o, err := d.store.Order(ctx, store.ByOrder(orderID))
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if o.PaymentStatus != model.PaymentSucceeded || !o.ShippingRequired {
		return ErrNotEligible
	}
	if id, _ := o.Metadata[model.MetaProviderOrderID].(string); id != "" {
		log.InfoContext(ctx, "already submitted", "provider_order", id)
		return nil
	}
	if !o.ShippingAddress.Complete() {
		log.WarnContext(ctx, "order has no usable shipping address")
		return apperr.ErrShippingAddressRequired
	}

	items, err := d.store.OrderItems(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	req := OrderRequest{
		ExternalID: o.ID,
		Recipient:  recipientFrom(*o.ShippingAddress, o.ContactEmail),
	}
	for _, it := range items {
		vid := it.ProviderVariantID()
		if vid == "" {
			continue
		}
		req.Items = append(req.Items, Item{
			VariantID:   vid,
			Quantity:    it.Quantity,
			RetailPrice: FromCents(it.UnitPriceCents),
			Name:        it.Title,
		})
	}
	if len(req.Items) == 0 {
		log.InfoContext(ctx, "no provider-mapped items, skipping")
		return nil
	}

	if err := d.registrar.Ensure(ctx); err != nil {
		log.WarnContext(ctx, "continuing without webhook registration", "err", err)
	}

	res, err := d.provider.CreateOrder(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "provider order failed", "status", "error", "err", err)
		return fmt.Errorf("create provider order: %w", err)
	}

	_, _, err = d.store.PatchOrder(ctx, store.ByOrder(o.ID), func(o model.Order) (model.Order, bool) {
		return lifecycle.ApplyShipping(o, lifecycle.ShippingUpdate{
			Status:   model.ShippingPreparing,
			OnlyFrom: []string{"", model.ShippingPending},
			Set: map[string]any{
				model.MetaProviderOrderID: res.ID,
				model.MetaProviderStatus:  res.Status,
			},
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		log.ErrorContext(ctx, "record provider order", "provider_order", res.ID, "err", err)
		return fmt.Errorf("record provider order: %w", err)
	}

	log.InfoContext(ctx, "submitted to provider", "provider_order", res.ID, "status", "ok")
	if err := d.events.Publish(ctx, events.New(events.TypeFulfillmentSent, o.ID, map[string]any{
		"providerOrderId": res.ID,
		"items":           len(req.Items),
	})); err != nil {
		log.WarnContext(ctx, "publish fulfillment event", "err", err)
	}
	return nil
}
