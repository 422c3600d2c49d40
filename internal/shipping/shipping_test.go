package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/cart"
	"github.com/iliamunaev/checkout-core/internal/model"
)

type fakeQuoter struct {
	rates []model.ShippingRate
	err   error
	calls int
	last  RateRequest
}

func (f *fakeQuoter) QuoteRates(_ context.Context, req RateRequest) ([]model.ShippingRate, error) {
	f.calls++
	f.last = req
	return f.rates, f.err
}

var addr = &model.Address{Line1: "1 Main", City: "Austin", PostalCode: "78701", Country: "US"}

func shipCart() cart.Cart {
	return cart.Cart{
		Currency: "usd",
		Lines: []cart.Line{
			{
				Product:  model.Product{ID: "p2", FulfillmentKind: model.KindShip},
				Variant:  &model.Variant{ID: "v1", ProviderVariantID: "pv-1"},
				Quantity: 2,
			},
			{
				Product:  model.Product{ID: "p3", FulfillmentKind: model.KindPhysical},
				Quantity: 1,
			},
		},
	}
}

func TestResolveNotRequired(t *testing.T) {
	t.Parallel()

	q := &fakeQuoter{}
	c := cart.Cart{Lines: []cart.Line{{Product: model.Product{FulfillmentKind: model.KindDownload}}}}

	got, err := NewResolver(q, nil).Resolve(context.Background(), c, nil, "")
	require.NoError(t, err)
	assert.False(t, got.Required)
	assert.Zero(t, got.AmountCents())
	assert.Zero(t, q.calls)
}

func TestResolveAddressRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr *model.Address
	}{
		{name: "nil", addr: nil},
		{name: "no_country", addr: &model.Address{City: "Austin", PostalCode: "78701"}},
		{name: "no_postal", addr: &model.Address{City: "Austin", Country: "US"}},
		{name: "no_city", addr: &model.Address{PostalCode: "78701", Country: "US"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := &fakeQuoter{}
			_, err := NewResolver(q, nil).Resolve(context.Background(), shipCart(), tt.addr, "")
			if !errors.Is(err, apperr.ErrShippingAddressRequired) {
				t.Fatalf("expected shipping_address_required, got %v", err)
			}
			if q.calls != 0 {
				t.Fatalf("expected no quote call, got %d", q.calls)
			}
		})
	}
}

func TestResolveQuotesMappedLinesOnly(t *testing.T) {
	t.Parallel()

	q := &fakeQuoter{rates: []model.ShippingRate{{ID: "std", AmountCents: 500}, {ID: "exp", AmountCents: 1500}}}
	got, err := NewResolver(q, nil).Resolve(context.Background(), shipCart(), addr, "")
	require.NoError(t, err)

	assert.Equal(t, []RateItem{{ProviderVariantID: "pv-1", Quantity: 2}}, q.last.Items)
	assert.Equal(t, "std", got.Selected.ID)
	assert.Equal(t, int64(500), got.AmountCents())
	assert.Len(t, got.Rates, 2)
}

func TestResolveChosenRate(t *testing.T) {
	t.Parallel()

	rates := []model.ShippingRate{{ID: "std", AmountCents: 500}, {ID: "exp", AmountCents: 1500}}

	got, err := NewResolver(&fakeQuoter{rates: rates}, nil).Resolve(context.Background(), shipCart(), addr, "exp")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.AmountCents())

	got, err = NewResolver(&fakeQuoter{rates: rates}, nil).Resolve(context.Background(), shipCart(), addr, "bogus")
	require.NoError(t, err)
	assert.Equal(t, "std", got.Selected.ID)
}

func TestResolveUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		q    *fakeQuoter
	}{
		{name: "empty", q: &fakeQuoter{}},
		{name: "provider_error", q: &fakeQuoter{err: errors.New("502")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewResolver(tt.q, nil).Resolve(context.Background(), shipCart(), addr, "")
			assert.ErrorIs(t, err, apperr.ErrShippingUnavailable)
		})
	}
}
