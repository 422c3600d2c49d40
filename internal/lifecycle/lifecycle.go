// Package lifecycle holds the legal order and payment transitions.
//
// Every function is pure and idempotent: applying the same input twice, or
// applying stale input after a newer one, leaves the record unchanged. Stores
// call these under a row lock so concurrent webhook deliveries converge.
package lifecycle

import (
	"reflect"

	"github.com/iliamunaev/checkout-core/internal/model"
)

var statusRank = map[string]int{
	"":                             0,
	model.StatusPending:            0,
	model.StatusRequiresPayment:    0,
	model.StatusFulfillmentPending: 1,
	model.StatusFulfilled:          2,
}

// Terminal reports whether a payment status can no longer change.
func Terminal(paymentStatus string) bool {
	return paymentStatus == model.PaymentSucceeded || paymentStatus == model.PaymentFailed
}

// advance moves status forward only.
func advance(cur, next string) (string, bool) {
	if statusRank[next] > statusRank[cur] {
		return next, true
	}
	return cur, false
}

// ApplyPayment records a processor outcome on the order.
//
// paymentStatus moves requires_payment -> succeeded|failed once. On success
// status advances to fulfillment_pending or fulfilled depending on whether
// shipping is required; on failure status is left alone.
func ApplyPayment(o model.Order, succeeded bool) (model.Order, bool) {
	if Terminal(o.PaymentStatus) {
		return o, false
	}
	if !succeeded {
		o.PaymentStatus = model.PaymentFailed
		return o, true
	}

	o.PaymentStatus = model.PaymentSucceeded
	next := model.StatusFulfilled
	if o.ShippingRequired {
		next = model.StatusFulfillmentPending
	}
	o.Status, _ = advance(o.Status, next)
	return o, true
}

// Charge carries the processor fields recorded on a successful payment.
type Charge struct {
	AmountCents int64
	ChargeID    string
	ReceiptURL  string
	Raw         map[string]any
}

// ApplyCharge settles a payment row. Terminal rows are never rewritten.
func ApplyCharge(p model.Payment, succeeded bool, c Charge) (model.Payment, bool) {
	if Terminal(p.Status) {
		return p, false
	}
	if succeeded {
		p.Status = model.PaymentSucceeded
		if c.AmountCents > 0 {
			p.AmountCents = c.AmountCents
		}
		p.ChargeID = c.ChargeID
		p.ReceiptURL = c.ReceiptURL
	} else {
		p.Status = model.PaymentFailed
	}
	if c.Raw != nil {
		p.Raw = c.Raw
	}
	return p, true
}

// ShippingUpdate is a partial shipment change. Empty fields mean "not
// supplied" and never clear what is already recorded.
type ShippingUpdate struct {
	Status         string
	TrackingNumber string
	TrackingURL    string
	Carrier        string

	// OnlyFrom restricts the status change to orders whose current shipping
	// status is one of these values. Empty means any.
	OnlyFrom []string

	// Set replaces metadata keys.
	Set map[string]any
	// Append adds an entry to the cumulative shipments list unless an
	// identical entry is already present.
	Append map[string]any
}

// shippedStatuses complete a paid physical order.
var shippedStatuses = map[string]bool{
	model.ShippingShipped:   true,
	model.ShippingInTransit: true,
	model.ShippingDelivered: true,
}

// ApplyShipping merges u into o.
func ApplyShipping(o model.Order, u ShippingUpdate) (model.Order, bool) {
	before := o.Clone()
	o = o.Clone()

	if u.Status != "" && statusAllowed(o.ShippingStatus, u.OnlyFrom) {
		o.ShippingStatus = u.Status
		if shippedStatuses[u.Status] && o.PaymentStatus == model.PaymentSucceeded {
			o.Status, _ = advance(o.Status, model.StatusFulfilled)
		}
	}
	if u.TrackingNumber != "" {
		o.TrackingNumber = u.TrackingNumber
	}
	if u.TrackingURL != "" {
		o.TrackingURL = u.TrackingURL
	}
	if u.Carrier != "" {
		o.ShippingCarrier = u.Carrier
	}

	if len(u.Set) > 0 || u.Append != nil {
		if o.Metadata == nil {
			o.Metadata = map[string]any{}
		}
	}
	for k, v := range u.Set {
		o.Metadata[k] = v
	}
	if u.Append != nil {
		list, _ := o.Metadata[model.MetaShipments].([]any)
		if !containsEntry(list, u.Append) {
			o.Metadata[model.MetaShipments] = append(list, u.Append)
		}
	}

	return o, !sameShipping(before, o)
}

func statusAllowed(cur string, from []string) bool {
	if len(from) == 0 {
		return true
	}
	for _, s := range from {
		if s == cur {
			return true
		}
	}
	return false
}

func containsEntry(list []any, entry map[string]any) bool {
	for _, v := range list {
		if m, ok := v.(map[string]any); ok && equalJSONish(m, entry) {
			return true
		}
	}
	return false
}

func sameShipping(a, b model.Order) bool {
	return a.ShippingStatus == b.ShippingStatus &&
		a.Status == b.Status &&
		a.TrackingNumber == b.TrackingNumber &&
		a.TrackingURL == b.TrackingURL &&
		a.ShippingCarrier == b.ShippingCarrier &&
		equalJSONish(a.Metadata, b.Metadata)
}

// equalJSONish compares decoded JSON-like values.
func equalJSONish(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
