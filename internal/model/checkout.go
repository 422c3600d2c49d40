package model

import "time"

// Contact is the buyer's contact details.
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// CheckoutRequest is the canonical checkout input after normalization.
type CheckoutRequest struct {
	SellingGroupID        string     `json:"sellingGroupId"`
	BuyerID               string     `json:"buyerId,omitempty"`
	Lines                 []CartLine `json:"cartLines"`
	Contact               Contact    `json:"contact"`
	ShippingRateID        string     `json:"shippingRateId,omitempty"`
	ShippingAddress       *Address   `json:"shippingAddress,omitempty"`
	BillingAddress        *Address   `json:"billingAddress,omitempty"`
	BillingSameAsShipping bool       `json:"billingSameAsShipping"`
	PromoCode             string     `json:"promoCode,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	PaymentMethod         string     `json:"paymentMethod,omitempty"`
	TermsVersion          string     `json:"termsVersion,omitempty"`
	TermsAcceptedAt       *time.Time `json:"termsAcceptedAt,omitempty"`
}

// ShippingRate is a carrier quote offered to the buyer.
type ShippingRate struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	MinDeliveryDays int    `json:"minDeliveryDays,omitempty"`
	MaxDeliveryDays int    `json:"maxDeliveryDays,omitempty"`
}

// CheckoutResponse is returned after a successful checkout.
type CheckoutResponse struct {
	OrderID          string         `json:"orderId"`
	ConfirmationCode string         `json:"confirmationCode"`
	ClientSecret     string         `json:"clientSecret"`
	PaymentIntentID  string         `json:"paymentIntentId"`
	SubtotalCents    int64          `json:"subtotalCents"`
	ShippingCents    int64          `json:"shippingCents"`
	TaxCents         int64          `json:"taxCents"`
	TotalCents       int64          `json:"totalCents"`
	Currency         string         `json:"currency"`
	TaxCalculationID string         `json:"taxCalculationId,omitempty"`
	ShippingRates    []ShippingRate `json:"shippingRates,omitempty"`
}

// ErrorPayload describes an error response.
type ErrorPayload struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`              // "shipping_address_required", "seller_connect_missing"
	Message string `json:"message,omitempty"` // human-readable
}
