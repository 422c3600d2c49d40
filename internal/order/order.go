// Package order orchestrates checkout: pricing, fee split, persistence and
// payment authorization.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/cart"
	"github.com/iliamunaev/checkout-core/internal/fee"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/payments"
	"github.com/iliamunaev/checkout-core/internal/shipping"
	"github.com/iliamunaev/checkout-core/internal/tax"
)

// Store is what checkout needs from persistence.
type Store interface {
	cart.Catalog
	CreateOrder(ctx context.Context, o model.Order, items []model.OrderItem, p model.Payment) error
	AttachPaymentIntent(ctx context.Context, orderID, paymentID, intentID string) error
}

// IntentCreator authorizes payment.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
}

// Observer receives per-step timings and final outcomes.
type Observer interface {
	ObserveStep(step, status string, d time.Duration)
	ObserveCheckout(code string)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, string, time.Duration) {}
func (nopObserver) ObserveCheckout(string)                     {}

// Deps wires a Service.
type Deps struct {
	Store    Store
	Shipping *shipping.Resolver
	Tax      *tax.Adapter
	Fees     *fee.Resolver
	Payments IntentCreator
	Observer Observer
	Log      *slog.Logger
}

// Service runs checkouts.
type Service struct {
	store    Store
	cart     *cart.Assembler
	shipping *shipping.Resolver
	tax      *tax.Adapter
	fees     *fee.Resolver
	payments IntentCreator
	obs      Observer
	log      *slog.Logger
	newID    func() string
	newCode  func() (string, error)
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Store == nil || d.Shipping == nil || d.Tax == nil || d.Fees == nil || d.Payments == nil {
		panic("order.New: nil dependency")
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:    d.Store,
		cart:     cart.NewAssembler(d.Store, d.Log),
		shipping: d.Shipping,
		tax:      d.Tax,
		fees:     d.Fees,
		payments: d.Payments,
		obs:      d.Observer,
		log:      d.Log,
		newID:    uuid.NewString,
		newCode:  NewConfirmationCode,
	}
}

// step times fn and reports it under name.
func (s *Service) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()

	st := "ok"
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			st = "canceled"
		} else {
			st = "error"
		}
	}
	s.obs.ObserveStep(name, st, time.Since(start))
	return err
}

func validate(req model.CheckoutRequest) error {
	switch {
	case strings.TrimSpace(req.SellingGroupID) == "":
		return apperr.BadRequest("sellingGroupId is required")
	case strings.TrimSpace(req.Contact.Email) == "":
		return apperr.BadRequest("contact.email is required")
	case len(req.Lines) == 0:
		return apperr.ErrEmptyCart
	}
	return nil
}

// Checkout prices the cart, persists a requires_payment order and returns
// the processor client secret. Nothing is persisted when any step before
// the insert fails; later failures leave the order in requires_payment.
func (s *Service) Checkout(ctx context.Context, req model.CheckoutRequest) (resp model.CheckoutResponse, err error) {
	defer func() { s.obs.ObserveCheckout(apperr.Kind(err)) }()

	if err := validate(req); err != nil {
		return model.CheckoutResponse{}, err
	}

	var c cart.Cart
	err = s.step("cart", func() error {
		var err error
		c, err = s.cart.Assemble(ctx, req.SellingGroupID, req.Lines)
		return err
	})
	if err != nil {
		return model.CheckoutResponse{}, err
	}

	// Shipping quotes and the seller account load are independent.
	var (
		ship     shipping.Result
		settings model.FeeSettings
		acct     *model.ConnectAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.step("shipping", func() error {
			var err error
			ship, err = s.shipping.Resolve(gctx, c, req.ShippingAddress, req.ShippingRateID)
			return err
		})
	})
	g.Go(func() error {
		return s.step("account", func() error {
			settings = s.fees.Settings(gctx)
			if !settings.Enabled {
				return nil
			}
			var err error
			acct, err = s.fees.Load(gctx, req.SellingGroupID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return model.CheckoutResponse{}, err
	}

	var pricing tax.Result
	_ = s.step("tax", func() error {
		pricing = s.tax.Calculate(ctx, c, req.ShippingAddress, ship.AmountCents())
		return nil
	})

	if pricing.TotalCents < 0 || pricing.TotalCents > cart.MaxAmountCents {
		return model.CheckoutResponse{}, cart.ErrAmountTooLarge
	}

	var split *fee.Split
	switch d := fee.Decide(settings, acct, pricing.TotalCents).(type) {
	case fee.Blocked:
		s.log.InfoContext(ctx, "checkout blocked", "selling_group", req.SellingGroupID, "code", d.Code)
		return model.CheckoutResponse{}, d.Err()
	case fee.Split:
		split = &d
	}

	code, err := s.newCode()
	if err != nil {
		return model.CheckoutResponse{}, err
	}

	o, items, pay := s.build(req, c, ship, pricing, split, code)
	err = s.step("persist", func() error {
		return s.store.CreateOrder(ctx, o, items, pay)
	})
	if err != nil {
		return model.CheckoutResponse{}, fmt.Errorf("create order: %w", err)
	}

	log := s.log.With("order_id", o.ID)

	var intent payments.Intent
	err = s.step("authorize", func() error {
		var err error
		intent, err = s.payments.CreatePaymentIntent(ctx, intentRequest(req, o, split))
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "payment intent failed; order left requires_payment", "err", err)
		if ctx.Err() != nil {
			return model.CheckoutResponse{}, ctx.Err()
		}
		return model.CheckoutResponse{}, fmt.Errorf("%w: %v", apperr.ErrPaymentUnavailable, err)
	}

	err = s.step("attach", func() error {
		return s.store.AttachPaymentIntent(ctx, o.ID, pay.ID, intent.ID)
	})
	if err != nil {
		log.ErrorContext(ctx, "attach payment intent", "payment_intent", intent.ID, "err", err)
		return model.CheckoutResponse{}, fmt.Errorf("attach payment intent: %w", err)
	}

	log.InfoContext(ctx, "checkout created",
		"payment_intent", intent.ID, "total_cents", o.TotalCents, "split", split != nil)

	resp = model.CheckoutResponse{
		OrderID:          o.ID,
		ConfirmationCode: code,
		ClientSecret:     intent.ClientSecret,
		PaymentIntentID:  intent.ID,
		SubtotalCents:    pricing.SubtotalCents,
		ShippingCents:    pricing.ShippingCents,
		TaxCents:         pricing.TaxCents,
		TotalCents:       pricing.TotalCents,
		Currency:         c.Currency,
		TaxCalculationID: pricing.CalculationID,
		ShippingRates:    ship.Rates,
	}
	return resp, nil
}

func (s *Service) build(req model.CheckoutRequest, c cart.Cart, ship shipping.Result, pricing tax.Result, split *fee.Split, code string) (model.Order, []model.OrderItem, model.Payment) {
	o := model.Order{
		ID:               s.newID(),
		SellingGroupID:   req.SellingGroupID,
		BuyerID:          req.BuyerID,
		Status:           model.StatusRequiresPayment,
		PaymentStatus:    model.PaymentRequiresPayment,
		SubtotalCents:    pricing.SubtotalCents,
		ShippingCents:    pricing.ShippingCents,
		TaxCents:         pricing.TaxCents,
		TotalCents:       pricing.TotalCents,
		Currency:         c.Currency,
		ContactEmail:     req.Contact.Email,
		ShippingRequired: ship.Required,
		ConfirmationCode: code,
		Metadata:         orderMetadata(req, c, ship, pricing, split),
	}
	if ship.Required {
		addr := *req.ShippingAddress
		o.ShippingAddress = &addr
		o.ShippingStatus = model.ShippingPending
	}
	if split != nil {
		o.FeeCents = split.FeeCents
	}

	items := make([]model.OrderItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		meta := map[string]any{model.MetaFulfillmentKind: l.Product.FulfillmentKind}
		if l.Variant != nil {
			meta[model.MetaVariantID] = l.Variant.ID
		}
		if id := l.ProviderVariantID(); id != "" {
			meta[model.MetaProviderVariantID] = id
		}
		items = append(items, model.OrderItem{
			ID:             s.newID(),
			OrderID:        o.ID,
			ProductID:      l.Product.ID,
			Title:          l.Title(),
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			TotalCents:     l.TotalCents,
			Currency:       c.Currency,
			Metadata:       meta,
		})
	}

	pay := model.Payment{
		ID:          s.newID(),
		OrderID:     o.ID,
		Status:      model.PaymentRequiresPayment,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
	}
	return o, items, pay
}

func orderMetadata(req model.CheckoutRequest, c cart.Cart, ship shipping.Result, pricing tax.Result, split *fee.Split) map[string]any {
	snapshot := make([]any, 0, len(c.Lines))
	for _, l := range c.Lines {
		line := map[string]any{
			"productId":      l.Product.ID,
			"quantity":       l.Quantity,
			"unitPriceCents": l.UnitPriceCents,
		}
		if l.Variant != nil {
			line["variantId"] = l.Variant.ID
		}
		snapshot = append(snapshot, line)
	}

	m := map[string]any{model.MetaCart: snapshot}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set(model.MetaTaxCalculationID, pricing.CalculationID)
	set(model.MetaNotes, req.Notes)
	set(model.MetaPromoCode, req.PromoCode)
	set(model.MetaPaymentMethod, req.PaymentMethod)
	set(model.MetaTermsVersion, req.TermsVersion)
	set(model.MetaContactPhone, req.Contact.Phone)
	if ship.Required {
		set(model.MetaShippingRateID, ship.Selected.ID)
	}
	if req.TermsAcceptedAt != nil {
		m[model.MetaTermsAcceptedAt] = req.TermsAcceptedAt.UTC().Format(time.RFC3339)
	}
	if billing := billingAddress(req); billing != nil {
		m[model.MetaBillingAddress] = billing
	}
	if split != nil {
		m[model.MetaApplicationFee] = split.FeeCents
		m[model.MetaDestination] = split.Destination
	}
	return m
}

func billingAddress(req model.CheckoutRequest) *model.Address {
	if req.BillingSameAsShipping && req.ShippingAddress != nil {
		a := *req.ShippingAddress
		return &a
	}
	if req.BillingAddress != nil {
		a := *req.BillingAddress
		return &a
	}
	return nil
}

func intentRequest(req model.CheckoutRequest, o model.Order, split *fee.Split) payments.IntentRequest {
	r := payments.IntentRequest{
		AmountCents:  o.TotalCents,
		Currency:     o.Currency,
		ReceiptEmail: o.ContactEmail,
		Metadata: map[string]string{
			"orderId":          o.ID,
			"confirmationCode": o.ConfirmationCode,
			"sellingGroupId":   o.SellingGroupID,
		},
		IdempotencyKey: "checkout-" + o.ID,
	}
	if o.ShippingRequired && o.ShippingAddress != nil {
		phone := o.ShippingAddress.Phone
		if phone == "" {
			phone = req.Contact.Phone
		}
		r.Shipping = &payments.Shipping{Name: o.ShippingAddress.Name, Phone: phone, Address: *o.ShippingAddress}
	}
	if split != nil {
		r.ApplicationFeeCents = split.FeeCents
		r.Destination = split.Destination
	}
	return r
}
