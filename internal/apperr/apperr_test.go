package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("checkout: %w", ErrShippingAddressRequired)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "empty_cart", err: ErrEmptyCart, want: "no_valid_items"},
		{name: "address_wrapped", err: wrapped, want: "shipping_address_required"},
		{name: "connect_missing", err: ErrSellerConnectMissing, want: "seller_connect_missing"},
		{name: "onboarding", err: ErrSellerOnboarding, want: "seller_onboarding_incomplete"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "unknown", err: errors.New("unknown"), want: "internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Kind(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("wrapped: %w", ErrShippingUnavailable)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "empty_cart", err: ErrEmptyCart, want: http.StatusBadRequest},
		{name: "unavailable_wrapped", err: wrapped, want: http.StatusUnprocessableEntity},
		{name: "connect_missing", err: ErrSellerConnectMissing, want: http.StatusConflict},
		{name: "signature", err: ErrInvalidSignature, want: http.StatusBadRequest},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "canceled", err: context.Canceled, want: http.StatusRequestTimeout},
		{name: "unknown", err: errors.New("unknown"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	copyErr := New(http.StatusConflict, "seller_connect_missing", "different message")
	if !errors.Is(copyErr, ErrSellerConnectMissing) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(copyErr, ErrSellerOnboarding) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	if got := Message(ErrEmptyCart); got != "no valid items in cart" {
		t.Fatalf("expected cart message, got %q", got)
	}
	if got := Message(errors.New("db exploded")); got != "internal error" {
		t.Fatalf("expected internal message, got %q", got)
	}
}
