package fulfillment

import (
	"context"
	"strconv"
	"sync"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/shipping"
)

// Mock is an in-process Provider for local runs without provider
// credentials. It quotes one flat rate and accepts every order.
type Mock struct {
	FlatRateCents int64

	mu     sync.Mutex
	seq    int
	orders []OrderRequest
}

func (m *Mock) QuoteRates(_ context.Context, r shipping.RateRequest) ([]model.ShippingRate, error) {
	return []model.ShippingRate{{
		ID:              "STANDARD",
		Name:            "Flat Rate",
		AmountCents:     m.FlatRateCents,
		Currency:        r.Currency,
		MinDeliveryDays: 3,
		MaxDeliveryDays: 7,
	}}, nil
}

func (m *Mock) CreateOrder(_ context.Context, r OrderRequest) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.orders = append(m.orders, r)
	return OrderResult{ID: strconv.Itoa(m.seq), Status: "draft"}, nil
}

func (m *Mock) SetWebhook(context.Context, string, []string) error { return nil }

// Orders returns submitted orders.
func (m *Mock) Orders() []OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderRequest(nil), m.orders...)
}
