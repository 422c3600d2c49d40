package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/cart"
	"github.com/iliamunaev/checkout-core/internal/fee"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/payments"
	"github.com/iliamunaev/checkout-core/internal/shipping"
	"github.com/iliamunaev/checkout-core/internal/store"
	"github.com/iliamunaev/checkout-core/internal/store/memory"
	"github.com/iliamunaev/checkout-core/internal/tax"
)

type fixedTax struct {
	cents int64
	err   error
}

func (f fixedTax) CalculateTax(context.Context, tax.Request) (tax.Calculation, error) {
	return tax.Calculation{ID: "taxcalc_1", TaxCents: f.cents}, f.err
}

type fakeRates struct{ rates []model.ShippingRate }

func (f fakeRates) QuoteRates(context.Context, shipping.RateRequest) ([]model.ShippingRate, error) {
	return f.rates, nil
}

type recordingProcessor struct {
	*payments.Mock
	mu   sync.Mutex
	reqs []payments.IntentRequest
	err  error
}

func (p *recordingProcessor) CreatePaymentIntent(ctx context.Context, r payments.IntentRequest) (payments.Intent, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, r)
	p.mu.Unlock()
	if p.err != nil {
		return payments.Intent{}, p.err
	}
	return p.Mock.CreatePaymentIntent(ctx, r)
}

type recordingObserver struct {
	mu    sync.Mutex
	steps []string
	codes []string
}

func (o *recordingObserver) ObserveStep(step, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step+":"+status)
}

func (o *recordingObserver) ObserveCheckout(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

type fixture struct {
	store *memory.Store
	proc  *recordingProcessor
	obs   *recordingObserver
	svc   *Service
}

func newFixture(t *testing.T, taxCents int64, defaults model.FeeSettings) fixture {
	t.Helper()

	st := memory.New()
	st.PutProduct(model.Product{ID: "p1", SellingGroupID: "g1", Title: "Zine", PriceCents: 1500, Currency: "usd", Active: true, FulfillmentKind: model.KindDownload})
	st.PutProduct(model.Product{ID: "tee", SellingGroupID: "g1", Title: "Tee", PriceCents: 2000, Currency: "usd", Active: true, FulfillmentKind: model.KindShip})
	st.PutVariant(model.Variant{ID: "tee-l", ProductID: "tee", Title: "L", Active: true, ProviderVariantID: "pv-9"})

	proc := &recordingProcessor{Mock: payments.NewMock()}
	obs := &recordingObserver{}
	svc := New(Deps{
		Store:    st,
		Shipping: shipping.NewResolver(fakeRates{rates: []model.ShippingRate{{ID: "std", Name: "Standard", AmountCents: 500}}}, nil),
		Tax:      tax.NewAdapter(fixedTax{cents: taxCents}, nil),
		Fees:     fee.NewResolver(st, proc, defaults, nil),
		Payments: proc,
		Observer: obs,
	})
	return fixture{store: st, proc: proc, obs: obs, svc: svc}
}

func digitalRequest() model.CheckoutRequest {
	return model.CheckoutRequest{
		SellingGroupID: "g1",
		Lines:          []model.CartLine{{ProductID: "p1", Quantity: 2}},
		Contact:        model.Contact{Email: "buyer@example.com"},
	}
}

func TestNew_NilDependencyPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil dependencies")
		}
	}()
	New(Deps{})
}

func TestCheckout_DigitalEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 240, model.FeeSettings{})
	resp, err := f.svc.Checkout(context.Background(), digitalRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(3000), resp.SubtotalCents)
	assert.Equal(t, int64(240), resp.TaxCents)
	assert.Equal(t, int64(3240), resp.TotalCents)
	assert.Equal(t, "taxcalc_1", resp.TaxCalculationID)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.Empty(t, resp.ShippingRates)

	o, err := f.store.Order(context.Background(), store.ByIntent(resp.PaymentIntentID))
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, o.ID)
	assert.Equal(t, model.StatusRequiresPayment, o.Status)
	assert.Equal(t, model.PaymentRequiresPayment, o.PaymentStatus)
	assert.False(t, o.ShippingRequired)
	assert.Zero(t, o.FeeCents)

	pays := f.store.PaymentsForOrder(o.ID)
	require.Len(t, pays, 1)
	assert.Equal(t, resp.PaymentIntentID, pays[0].PaymentIntentID)
	assert.Equal(t, int64(3240), pays[0].AmountCents)

	require.Len(t, f.proc.reqs, 1)
	assert.Nil(t, f.proc.reqs[0].Shipping)
	assert.Equal(t, o.ID, f.proc.reqs[0].Metadata["orderId"])
	assert.Equal(t, "checkout-"+o.ID, f.proc.reqs[0].IdempotencyKey)
	assert.Equal(t, []string{""}, f.obs.codes)
}

func TestCheckout_ShipItemWithoutAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, model.FeeSettings{})
	req := digitalRequest()
	req.Lines = []model.CartLine{{ProductID: "tee", VariantID: "tee-l", Quantity: 1}}

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, apperr.ErrShippingAddressRequired)
	assert.Zero(t, f.store.OrderCount())
	assert.Empty(t, f.proc.reqs)
	assert.Equal(t, []string{"shipping_address_required"}, f.obs.codes)
}

func TestCheckout_ShippingOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 100, model.FeeSettings{})
	req := digitalRequest()
	req.Lines = []model.CartLine{{ProductID: "tee", VariantID: "tee-l", Quantity: 1}}
	req.ShippingAddress = &model.Address{Name: "Ada", Line1: "1 Main", City: "Austin", PostalCode: "78701", Country: "US"}
	req.BillingSameAsShipping = true

	resp, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2000+500+100), resp.TotalCents)
	assert.Len(t, resp.ShippingRates, 1)

	o, err := f.store.Order(context.Background(), store.ByOrder(resp.OrderID))
	require.NoError(t, err)
	assert.True(t, o.ShippingRequired)
	assert.Equal(t, model.ShippingPending, o.ShippingStatus)
	assert.Equal(t, "std", o.Metadata[model.MetaShippingRateID])
	assert.NotNil(t, o.Metadata[model.MetaBillingAddress])

	items, err := f.store.OrderItems(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pv-9", items[0].ProviderVariantID())
	assert.Equal(t, "Tee - L", items[0].Title)

	require.Len(t, f.proc.reqs, 1)
	require.NotNil(t, f.proc.reqs[0].Shipping)
	assert.Equal(t, "Austin", f.proc.reqs[0].Shipping.Address.City)
}

func TestCheckout_SellerConnectMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 240, model.FeeSettings{Enabled: true, BasisPoints: 1000, RequireAccount: true})
	_, err := f.svc.Checkout(context.Background(), digitalRequest())

	require.Error(t, err)
	assert.Equal(t, "seller_connect_missing", apperr.Kind(err))
	assert.Zero(t, f.store.OrderCount())
	assert.Empty(t, f.proc.reqs)
}

func TestCheckout_SplitAppliesFee(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 240, model.FeeSettings{Enabled: true, BasisPoints: 1000, RequireAccount: true})
	acct, err := f.proc.CreateAccount(context.Background(), "g1", "")
	require.NoError(t, err)
	acct.SellingGroupID = "g1"
	require.NoError(t, f.store.SaveConnectAccount(context.Background(), acct))

	resp, err := f.svc.Checkout(context.Background(), digitalRequest())
	require.NoError(t, err)

	o, err := f.store.Order(context.Background(), store.ByOrder(resp.OrderID))
	require.NoError(t, err)
	assert.Equal(t, int64(324), o.FeeCents)
	assert.Equal(t, acct.AccountID, o.Metadata[model.MetaDestination])

	require.Len(t, f.proc.reqs, 1)
	assert.Equal(t, int64(324), f.proc.reqs[0].ApplicationFeeCents)
	assert.Equal(t, acct.AccountID, f.proc.reqs[0].Destination)
}

func TestCheckout_TaxFailureDegrades(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, model.FeeSettings{})
	f.svc.tax = tax.NewAdapter(fixedTax{err: errors.New("engine down")}, nil)

	resp, err := f.svc.Checkout(context.Background(), digitalRequest())
	require.NoError(t, err)
	assert.Zero(t, resp.TaxCents)
	assert.Equal(t, int64(3000), resp.TotalCents)
	assert.Empty(t, resp.TaxCalculationID)
}

func TestCheckout_AuthorizationFailureLeavesRecoverableOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, model.FeeSettings{})
	f.proc.err = errors.New("processor 500")

	_, err := f.svc.Checkout(context.Background(), digitalRequest())
	require.ErrorIs(t, err, apperr.ErrPaymentUnavailable)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCheckout_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.CheckoutRequest)
		code   string
	}{
		{name: "no_group", mutate: func(r *model.CheckoutRequest) { r.SellingGroupID = "" }, code: "bad_request"},
		{name: "no_email", mutate: func(r *model.CheckoutRequest) { r.Contact.Email = " " }, code: "bad_request"},
		{name: "no_lines", mutate: func(r *model.CheckoutRequest) { r.Lines = nil }, code: "no_valid_items"},
		{name: "inactive_only", mutate: func(r *model.CheckoutRequest) { r.Lines = []model.CartLine{{ProductID: "ghost"}} }, code: "no_valid_items"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 0, model.FeeSettings{})
			req := digitalRequest()
			tt.mutate(&req)

			_, err := f.svc.Checkout(context.Background(), req)
			if got := apperr.Kind(err); got != tt.code {
				t.Fatalf("expected %q, got %q", tt.code, got)
			}
			if f.store.OrderCount() != 0 {
				t.Fatal("expected no persisted order")
			}
		})
	}
}

func TestCheckout_RecordsSteps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, model.FeeSettings{})
	_, err := f.svc.Checkout(context.Background(), digitalRequest())
	require.NoError(t, err)

	joined := strings.Join(f.obs.steps, ",")
	for _, step := range []string{"cart:ok", "shipping:ok", "account:ok", "tax:ok", "persist:ok", "authorize:ok", "attach:ok"} {
		assert.Contains(t, joined, step)
	}
}

func TestConfirmationCode(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		code, err := NewConfirmationCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, r := range code {
			if !strings.ContainsRune(CodeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %s", r, code)
			}
		}
		if strings.ContainsAny(code, "0O1I") {
			t.Fatalf("ambiguous character in %s", code)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 990)
}

func TestCheckout_RejectsUnchargeableTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		price    int64
		quantity int64
		taxCents int64
	}{
		{name: "quantity_overflow", price: 1500, quantity: 1e16},
		{name: "tax_pushes_over_max", price: cart.MaxAmountCents - 100, quantity: 1, taxCents: 240},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tt.taxCents, model.FeeSettings{})
			f.store.PutProduct(model.Product{ID: "pricey", SellingGroupID: "g1", Title: "Print", PriceCents: tt.price, Currency: "usd", Active: true, FulfillmentKind: model.KindDownload})

			req := digitalRequest()
			req.Lines = []model.CartLine{{ProductID: "pricey", Quantity: tt.quantity}}
			resp, err := f.svc.Checkout(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, "bad_request", apperr.Kind(err))
			assert.Equal(t, 400, apperr.HTTPStatus(err))
			assert.Empty(t, resp.OrderID)
			assert.Zero(t, f.store.OrderCount(), "nothing may be persisted")
			f.proc.mu.Lock()
			defer f.proc.mu.Unlock()
			assert.Empty(t, f.proc.reqs, "no payment intent may be requested")
		})
	}
}
