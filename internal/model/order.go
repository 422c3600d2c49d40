// Package model defines the domain records and the request and response
// payloads used by the API. It keeps shared types in one place for reuse.
package model

import "time"

// Order lifecycle values.
const (
	StatusPending            = "pending"
	StatusRequiresPayment    = "requires_payment"
	StatusFulfillmentPending = "fulfillment_pending"
	StatusFulfilled          = "fulfilled"
)

// Payment lifecycle values. Succeeded and failed are terminal.
const (
	PaymentRequiresPayment = "requires_payment"
	PaymentSucceeded       = "succeeded"
	PaymentFailed          = "failed"
)

// Shipping status labels.
const (
	ShippingPending   = "pending"
	ShippingPreparing = "preparing"
	ShippingShipped   = "shipped"
	ShippingInTransit = "in_transit"
	ShippingDelivered = "delivered"
	ShippingOnHold    = "on_hold"
	ShippingCanceled  = "canceled"
	ShippingRefunded  = "refunded"
	ShippingFailed    = "failed"
	ShippingReturned  = "returned"
)

// Metadata keys stored in Order.Metadata.
const (
	MetaCart              = "cart"
	MetaTaxCalculationID  = "taxCalculationId"
	MetaApplicationFee    = "applicationFeeAmount"
	MetaDestination       = "destinationAccount"
	MetaShippingRateID    = "shippingRateId"
	MetaProviderOrderID   = "providerOrderId"
	MetaProviderStatus    = "providerOrderStatus"
	MetaShipments         = "shipments"
	MetaLastWebhook       = "lastWebhook"
	MetaNotes             = "notes"
	MetaPromoCode         = "promoCode"
	MetaTermsVersion      = "termsVersion"
	MetaTermsAcceptedAt   = "termsAcceptedAt"
	MetaBillingAddress    = "billingAddress"
	MetaPaymentMethod     = "paymentMethod"
	MetaContactPhone      = "contactPhone"
	MetaVariantID         = "variantId"
	MetaFulfillmentKind   = "fulfillmentKind"
	MetaProviderVariantID = "providerVariantId"
)

// Address is a postal address.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Complete reports whether the address has what shipping needs.
func (a *Address) Complete() bool {
	return a != nil && a.Country != "" && a.PostalCode != "" && a.City != ""
}

// Order is the aggregate record of one checkout attempt.
type Order struct {
	ID               string         `json:"id"`
	SellingGroupID   string         `json:"sellingGroupId"`
	BuyerID          string         `json:"buyerId,omitempty"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"paymentStatus"`
	SubtotalCents    int64          `json:"subtotalCents"`
	ShippingCents    int64          `json:"shippingCents"`
	TaxCents         int64          `json:"taxCents"`
	FeeCents         int64          `json:"feeCents"`
	TotalCents       int64          `json:"totalCents"`
	Currency         string         `json:"currency"`
	ContactEmail     string         `json:"contactEmail,omitempty"`
	ShippingRequired bool           `json:"shippingRequired"`
	ShippingAddress  *Address       `json:"shippingAddress,omitempty"`
	ShippingCarrier  string         `json:"shippingCarrier,omitempty"`
	TrackingNumber   string         `json:"trackingNumber,omitempty"`
	TrackingURL      string         `json:"trackingUrl,omitempty"`
	ShippingStatus   string         `json:"shippingStatus,omitempty"`
	ConfirmationCode string         `json:"confirmationCode"`
	PaymentIntentID  string         `json:"paymentIntentId,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with o.
func (o Order) Clone() Order {
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		o.ShippingAddress = &addr
	}
	o.Metadata = CloneMetadata(o.Metadata)
	return o
}

// OrderItem is an immutable line snapshot.
type OrderItem struct {
	ID             string         `json:"id"`
	OrderID        string         `json:"orderId"`
	ProductID      string         `json:"productId"`
	Title          string         `json:"title"`
	Quantity       int64          `json:"quantity"`
	UnitPriceCents int64          `json:"unitPriceCents"`
	TotalCents     int64          `json:"totalCents"`
	Currency       string         `json:"currency"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ProviderVariantID returns the fulfillment provider's variant id stored on the item.
func (i OrderItem) ProviderVariantID() string {
	v, _ := i.Metadata[MetaProviderVariantID].(string)
	return v
}

// Payment is one authorization attempt.
type Payment struct {
	ID              string         `json:"id"`
	OrderID         string         `json:"orderId"`
	PaymentIntentID string         `json:"paymentIntentId,omitempty"`
	Status          string         `json:"status"`
	AmountCents     int64          `json:"amountCents"`
	Currency        string         `json:"currency"`
	ChargeID        string         `json:"chargeId,omitempty"`
	ReceiptURL      string         `json:"receiptUrl,omitempty"`
	Raw             map[string]any `json:"raw,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Payout records the seller share of a settled split order.
type Payout struct {
	OrderID        string    `json:"orderId"`
	SellingGroupID string    `json:"sellingGroupId"`
	AccountID      string    `json:"accountId"`
	AmountCents    int64     `json:"amountCents"`
	FeeCents       int64     `json:"feeCents"`
	Currency       string    `json:"currency"`
	TransferRef    string    `json:"transferRef,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CloneMetadata returns a shallow copy of m, copying nested slices so
// appends do not alias the original.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.([]any); ok {
			v = append([]any(nil), s...)
		}
		out[k] = v
	}
	return out
}
