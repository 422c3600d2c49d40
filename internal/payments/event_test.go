package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliamunaev/checkout-core/internal/apperr"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Now()
	good := Sign(body, "whsec", now)

	tests := []struct {
		name   string
		body   []byte
		header string
		secret string
		ok     bool
	}{
		{name: "valid", body: body, header: good, secret: "whsec", ok: true},
		{name: "within_tolerance", body: body, header: Sign(body, "whsec", now.Add(-4*time.Minute)), secret: "whsec", ok: true},
		{name: "multiple_v1", body: body, header: good + ",v1=deadbeef", secret: "whsec", ok: true},
		{name: "expired", body: body, header: Sign(body, "whsec", now.Add(-6*time.Minute)), secret: "whsec"},
		{name: "wrong_secret", body: body, header: good, secret: "other"},
		{name: "tampered_body", body: []byte(`{"id":"evt_2"}`), header: good, secret: "whsec"},
		{name: "missing_header", body: body, header: "", secret: "whsec"},
		{name: "no_secret", body: body, header: good, secret: ""},
		{name: "garbage", body: body, header: "t=abc,v1=zz", secret: "whsec"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := VerifySignature(tt.body, tt.header, tt.secret, DefaultTolerance)
			if tt.ok && err != nil {
				t.Fatalf("expected valid signature, got %v", err)
			}
			if !tt.ok && !errors.Is(err, apperr.ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestSignMatchesSDKTestHeader(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	ts := time.Now()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: "whsec", Timestamp: ts})

	assert.Equal(t, signed.Header, Sign(body, "whsec", ts))
	require.NoError(t, VerifySignature(body, signed.Header, "whsec", DefaultTolerance))
}

func TestParseEventIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantCharge string
		wantURL    string
	}{
		{
			name:       "charge_id",
			body:       `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":3240,"amount_received":3240,"latest_charge":"ch_1"}}}`,
			wantCharge: "ch_1",
		},
		{
			name:       "expanded_charge",
			body:       `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","latest_charge":{"id":"ch_2","receipt_url":"https://receipt"}}}}`,
			wantCharge: "ch_2",
			wantURL:    "https://receipt",
		},
		{
			name: "no_charge",
			body: `{"id":"evt_1","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","latest_charge":null}}}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := ParseEvent([]byte(tt.body))
			require.NoError(t, err)
			in, err := e.Intent()
			require.NoError(t, err)

			assert.Equal(t, "pi_1", in.ID)
			assert.Equal(t, tt.wantCharge, in.ChargeID)
			assert.Equal(t, tt.wantURL, in.ReceiptURL)
			assert.Equal(t, "pi_1", in.Raw["id"])
		})
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`not json`, `{}`, `{"type":""}`} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, apperr.ErrInvalidPayload, body)
	}
}
