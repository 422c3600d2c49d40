package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/fulfillment"
	"github.com/iliamunaev/checkout-core/internal/lifecycle"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// eventStatus maps provider event types to shipping statuses. Types absent
// here fall back to the order status table.
var eventStatus = map[string]string{
	"order_created":     model.ShippingPending,
	"order_failed":      model.ShippingFailed,
	"order_canceled":    model.ShippingCanceled,
	"order_put_hold":    model.ShippingOnHold,
	"order_remove_hold": model.ShippingPreparing,
	"order_refunded":    model.ShippingRefunded,
	"package_shipped":   model.ShippingShipped,
	"package_returned":  model.ShippingReturned,
}

// orderStatus maps provider order statuses to shipping statuses.
var orderStatus = map[string]string{
	"draft":     model.ShippingPending,
	"pending":   model.ShippingPending,
	"inprocess": model.ShippingPreparing,
	"onhold":    model.ShippingOnHold,
	"partial":   model.ShippingInTransit,
	"fulfilled": model.ShippingShipped,
	"shipped":   model.ShippingShipped,
	"delivered": model.ShippingDelivered,
	"canceled":  model.ShippingCanceled,
	"cancelled": model.ShippingCanceled,
	"failed":    model.ShippingFailed,
	"refunded":  model.ShippingRefunded,
	"returned":  model.ShippingReturned,
}

// earlyFrom keeps stale early-stage events from rewinding an order that has
// already moved on.
var earlyFrom = map[string][]string{
	model.ShippingPending:   {"", model.ShippingPending},
	model.ShippingPreparing: {"", model.ShippingPending, model.ShippingPreparing, model.ShippingOnHold},
}

type shipment struct {
	Carrier        string `json:"carrier"`
	Service        string `json:"service"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	ShipDate       string `json:"ship_date"`
}

func (s shipment) empty() bool {
	return s.Carrier == "" && s.TrackingNumber == "" && s.TrackingURL == ""
}

type providerEvent struct {
	Type    string          `json:"type"`
	Created json.RawMessage `json:"created"`
	Data    struct {
		ExternalID string `json:"external_id"`
		Status     string `json:"status"`
		Order      *struct {
			ExternalID string `json:"external_id"`
			Status     string `json:"status"`
		} `json:"order"`
		Shipments      []shipment `json:"shipments"`
		Shipment       *shipment  `json:"shipment"`
		TrackingNumber string     `json:"tracking_number"`
		TrackingURL    string     `json:"tracking_url"`
		Carrier        string     `json:"carrier"`
	} `json:"data"`
}

func (e providerEvent) externalID() string {
	if e.Data.ExternalID != "" {
		return e.Data.ExternalID
	}
	if e.Data.Order != nil {
		return e.Data.Order.ExternalID
	}
	return ""
}

func (e providerEvent) rawStatus() string {
	if e.Data.Status != "" {
		return e.Data.Status
	}
	if e.Data.Order != nil {
		return e.Data.Order.Status
	}
	return ""
}

// shippingStatus prefers the event type over the order status.
func (e providerEvent) shippingStatus() string {
	if s, ok := eventStatus[strings.ToLower(e.Type)]; ok {
		return s
	}
	return orderStatus[strings.ToLower(e.rawStatus())]
}

// tracking takes the latest shipment carrying tracking data, then the
// single shipment object, then top-level fields.
func (e providerEvent) tracking() shipment {
	for i := len(e.Data.Shipments) - 1; i >= 0; i-- {
		if !e.Data.Shipments[i].empty() {
			return e.Data.Shipments[i]
		}
	}
	if e.Data.Shipment != nil && !e.Data.Shipment.empty() {
		return *e.Data.Shipment
	}
	return shipment{
		Carrier:        e.Data.Carrier,
		TrackingNumber: e.Data.TrackingNumber,
		TrackingURL:    e.Data.TrackingURL,
	}
}

func parseProviderEvent(body []byte) (providerEvent, map[string]any, error) {
	var ev providerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return providerEvent{}, nil, fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return providerEvent{}, nil, fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return providerEvent{}, nil, fmt.Errorf("%w: missing event type", apperr.ErrInvalidPayload)
	}
	return ev, raw, nil
}

// HandleFulfillmentEvent verifies and applies one provider delivery. An
// invalid signature is rejected before the body is even decoded.
func (r *Reconciler) HandleFulfillmentEvent(ctx context.Context, body []byte, h http.Header) (string, error) {
	outcome, err := r.applyFulfillment(ctx, body, h)
	r.obs.ObserveWebhook(SourceFulfillment, outcome)
	return outcome, err
}

func (r *Reconciler) applyFulfillment(ctx context.Context, body []byte, h http.Header) (string, error) {
	if err := fulfillment.VerifySignature(body, h, r.fulfillmentSecret); err != nil {
		return OutcomeRejected, err
	}
	ev, raw, err := parseProviderEvent(body)
	if err != nil {
		return OutcomeRejected, err
	}

	orderID := ev.externalID()
	log := r.log.With("event_type", ev.Type, "order_id", orderID)
	if orderID == "" {
		log.InfoContext(ctx, "fulfillment event without external id")
		return OutcomeIgnored, nil
	}

	status := ev.shippingStatus()
	tr := ev.tracking()
	u := lifecycle.ShippingUpdate{
		Status:         status,
		OnlyFrom:       earlyFrom[status],
		TrackingNumber: tr.TrackingNumber,
		TrackingURL:    tr.TrackingURL,
		Carrier:        tr.Carrier,
		Set:            map[string]any{model.MetaLastWebhook: raw},
	}
	if s := ev.rawStatus(); s != "" {
		u.Set[model.MetaProviderStatus] = s
	}
	if !tr.empty() {
		u.Append = map[string]any{
			"type":           ev.Type,
			"carrier":        tr.Carrier,
			"service":        tr.Service,
			"trackingNumber": tr.TrackingNumber,
			"trackingUrl":    tr.TrackingURL,
			"shipDate":       tr.ShipDate,
		}
	}

	o, changed, err := r.store.PatchOrder(ctx, store.ByOrder(orderID), func(o model.Order) (model.Order, bool) {
		return lifecycle.ApplyShipping(o, u)
	})
	if errors.Is(err, store.ErrNotFound) {
		log.InfoContext(ctx, "fulfillment event for unknown order")
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("patch order: %w", err)
	}
	if !changed {
		return OutcomeNoop, nil
	}

	log.InfoContext(ctx, "fulfillment event applied", "shipping_status", o.ShippingStatus, "status", o.Status)
	e := events.New(events.TypeShippingUpdated, o.ID, map[string]any{
		"shippingStatus": o.ShippingStatus,
		"trackingNumber": o.TrackingNumber,
		"trackingUrl":    o.TrackingURL,
		"carrier":        o.ShippingCarrier,
	})
	if err := r.events.Publish(ctx, e); err != nil {
		log.WarnContext(ctx, "publish event", "type", e.Type, "err", err)
	}
	return OutcomeApplied, nil
}
