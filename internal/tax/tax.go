// Package tax prices a cart through the external tax engine and degrades to
// zero tax when the engine is unavailable.
package tax

import (
	"context"
	"log/slog"

	"github.com/iliamunaev/checkout-core/internal/cart"
	"github.com/iliamunaev/checkout-core/internal/model"
)

// LineItem is one taxable line sent to the engine.
type LineItem struct {
	Reference   string
	AmountCents int64
	Quantity    int64
}

// Request is a tax calculation request.
type Request struct {
	Currency      string
	Lines         []LineItem
	Address       *model.Address
	ShippingCents int64
}

// Calculation is the engine's answer. Nil subtotal/total mean the engine did
// not report them.
type Calculation struct {
	ID            string
	SubtotalCents *int64
	TaxCents      int64
	TotalCents    *int64
}

// Calculator is the external tax engine.
type Calculator interface {
	CalculateTax(ctx context.Context, req Request) (Calculation, error)
}

// Result is the pricing breakdown. Total always equals
// Subtotal + Shipping + Tax and Tax is never negative.
type Result struct {
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
	CalculationID string
}

// Adapter wraps a Calculator with the zero-tax fallback.
type Adapter struct {
	calc Calculator
	log  *slog.Logger
}

// NewAdapter returns an Adapter. A nil Calculator always falls back.
func NewAdapter(c Calculator, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Adapter{calc: c, log: log}
}

// Calculate never fails; engine errors yield zero tax on the local sums.
func (a *Adapter) Calculate(ctx context.Context, c cart.Cart, addr *model.Address, shippingCents int64) Result {
	local := Result{
		SubtotalCents: c.SubtotalCents,
		ShippingCents: shippingCents,
		TotalCents:    c.SubtotalCents + shippingCents,
	}
	if a.calc == nil {
		return local
	}

	req := Request{Currency: c.Currency, Address: addr, ShippingCents: shippingCents}
	for _, l := range c.Lines {
		ref := l.Product.ID
		if l.Variant != nil {
			ref += ":" + l.Variant.ID
		}
		req.Lines = append(req.Lines, LineItem{Reference: ref, AmountCents: l.TotalCents, Quantity: l.Quantity})
	}

	calc, err := a.calc.CalculateTax(ctx, req)
	if err != nil {
		a.log.WarnContext(ctx, "tax calculation failed, charging zero tax", "err", err)
		return local
	}

	out := Result{
		SubtotalCents: c.SubtotalCents,
		ShippingCents: shippingCents,
		TaxCents:      max(calc.TaxCents, 0),
		CalculationID: calc.ID,
	}
	if calc.SubtotalCents != nil && *calc.SubtotalCents >= 0 {
		out.SubtotalCents = *calc.SubtotalCents
	}
	out.TotalCents = out.SubtotalCents + out.ShippingCents + out.TaxCents

	if calc.TotalCents != nil && *calc.TotalCents != out.TotalCents {
		base := out.SubtotalCents + out.ShippingCents
		if *calc.TotalCents >= base {
			out.TaxCents = *calc.TotalCents - base
			out.TotalCents = *calc.TotalCents
		}
		a.log.InfoContext(ctx, "tax engine total differs from line sum",
			"engine_total", *calc.TotalCents, "total", out.TotalCents, "calculation", calc.ID)
	}
	return out
}
