// Package shipping decides whether a cart ships and picks a carrier rate.
package shipping

import (
	"context"
	"log/slog"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/cart"
	"github.com/iliamunaev/checkout-core/internal/model"
)

// RateItem is one provider-mapped line in a quote request.
type RateItem struct {
	ProviderVariantID string `json:"variant_id"`
	Quantity          int64  `json:"quantity"`
}

// RateRequest asks the provider for rates to Address.
type RateRequest struct {
	Address  model.Address
	Items    []RateItem
	Currency string
}

// RateQuoter returns carrier quotes.
type RateQuoter interface {
	QuoteRates(ctx context.Context, req RateRequest) ([]model.ShippingRate, error)
}

// Result is the resolved shipping choice. The zero value means no shipping.
type Result struct {
	Required bool
	Rates    []model.ShippingRate
	Selected model.ShippingRate
}

// AmountCents is the cost of the selected rate.
func (r Result) AmountCents() int64 {
	if !r.Required {
		return 0
	}
	return r.Selected.AmountCents
}

// Resolver resolves shipping for an assembled cart.
type Resolver struct {
	quoter RateQuoter
	log    *slog.Logger
}

// NewResolver returns a Resolver backed by q.
func NewResolver(q RateQuoter, log *slog.Logger) *Resolver {
	if q == nil {
		panic("shipping: nil quoter")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{quoter: q, log: log}
}

// Resolve quotes rates when the cart ships. A missing country, postal code
// or city fails before any provider call.
func (r *Resolver) Resolve(ctx context.Context, c cart.Cart, addr *model.Address, chosenRateID string) (Result, error) {
	if !c.ShippingRequired() {
		return Result{}, nil
	}
	if !addr.Complete() {
		return Result{}, apperr.ErrShippingAddressRequired
	}

	items := make([]RateItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		if id := l.ProviderVariantID(); id != "" {
			items = append(items, RateItem{ProviderVariantID: id, Quantity: l.Quantity})
		}
	}
	if len(items) == 0 {
		r.log.WarnContext(ctx, "no provider-mapped lines to quote")
		return Result{}, apperr.ErrShippingUnavailable
	}

	rates, err := r.quoter.QuoteRates(ctx, RateRequest{Address: *addr, Items: items, Currency: c.Currency})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		r.log.WarnContext(ctx, "shipping quote failed", "err", err)
		return Result{}, apperr.ErrShippingUnavailable
	}
	if len(rates) == 0 {
		return Result{}, apperr.ErrShippingUnavailable
	}

	selected := rates[0]
	for _, rate := range rates {
		if chosenRateID != "" && rate.ID == chosenRateID {
			selected = rate
			break
		}
	}
	return Result{Required: true, Rates: rates, Selected: selected}, nil
}
