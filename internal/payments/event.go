package payments

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliamunaev/checkout-core/internal/apperr"
)

// Handled event types.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed timestamp.
const DefaultTolerance = webhook.DefaultTolerance

// Event is the processor's webhook envelope.
type Event struct {
	ID      string
	Type    string
	Created int64
	Object  json.RawMessage
}

// IntentObject is the payment-intent payload carried by intent events.
type IntentObject struct {
	ID             string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         string
	Metadata       map[string]string

	ChargeID   string
	ReceiptURL string
	Raw        map[string]any
}

// ParseEvent decodes an envelope.
func ParseEvent(body []byte) (Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(body, &se); err != nil {
		return Event{}, fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	if se.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", apperr.ErrInvalidPayload)
	}
	e := Event{ID: se.ID, Type: string(se.Type), Created: se.Created}
	if se.Data != nil {
		e.Object = se.Data.Raw
	}
	return e, nil
}

// Intent decodes the event object as a payment intent. latest_charge may be
// an id string or an expanded charge object.
func (e Event) Intent() (IntentObject, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(e.Object, &pi); err != nil {
		return IntentObject{}, fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	if pi.ID == "" {
		return IntentObject{}, fmt.Errorf("%w: intent without id", apperr.ErrInvalidPayload)
	}
	o := IntentObject{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		Metadata:       pi.Metadata,
	}
	if pi.LatestCharge != nil {
		o.ChargeID, o.ReceiptURL = pi.LatestCharge.ID, pi.LatestCharge.ReceiptURL
	}
	_ = json.Unmarshal(e.Object, &o.Raw)
	return o, nil
}

// Sign returns a signature header value for body at ts.
func Sign(body []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(webhook.ComputeSignature(ts, body, secret)))
}

// VerifySignature checks a "t=…,v1=…" header against body. Any v1 entry may
// match; the timestamp must be no older than tolerance.
func VerifySignature(body []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" || header == "" {
		return apperr.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(body, header, secret, tolerance); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidSignature, err)
	}
	return nil
}
