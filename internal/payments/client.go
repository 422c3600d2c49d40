// Package payments talks to the payment processor: payment intents, tax
// calculations and seller sub-accounts.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/tax"
)

// Shipping is the ship-to block attached to an intent.
type Shipping struct {
	Name    string
	Phone   string
	Address model.Address
}

// IntentRequest authorizes AmountCents in Currency.
type IntentRequest struct {
	AmountCents         int64
	Currency            string
	ReceiptEmail        string
	Shipping            *Shipping
	Metadata            map[string]string
	ApplicationFeeCents int64
	Destination         string
	// IdempotencyKey makes retried creates return the original intent.
	IdempotencyKey string
}

// Intent is the processor's payment-intent handle.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Processor is the payment processor contract.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (Intent, error)
	CalculateTax(ctx context.Context, req tax.Request) (tax.Calculation, error)
	RetrieveAccount(ctx context.Context, accountID string) (model.ConnectAccount, error)
	CreateAccount(ctx context.Context, groupID, email string) (model.ConnectAccount, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

// APIError is a non-2xx processor response.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payments: %d %s: %s", e.Status, e.Type, e.Message)
}

// apiError flattens SDK errors into APIError; transport errors are wrapped.
func apiError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &APIError{Status: se.HTTPStatusCode, Type: string(se.Type), Code: string(se.Code), Message: se.Msg}
	}
	return fmt.Errorf("payments %s: %w", op, err)
}

// HTTPClient is the processor API client built on stripe-go.
type HTTPClient struct {
	api *client.API
}

// NewHTTPClient returns an HTTPClient against baseURL. An empty baseURL uses
// the SDK default and a nil hc uses a 10s-timeout client.
func NewHTTPClient(baseURL, apiKey string, hc *http.Client, log *slog.Logger) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:    hc,
		LeveledLogger: sdkLogger{log: log},
	}
	if baseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &HTTPClient{api: client.New(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})}
}

// sdkLogger routes SDK logging into slog.
type sdkLogger struct{ log *slog.Logger }

func (l sdkLogger) Debugf(format string, v ...interface{}) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l sdkLogger) Infof(format string, v ...interface{})  { l.log.Info(fmt.Sprintf(format, v...)) }
func (l sdkLogger) Warnf(format string, v ...interface{})  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l sdkLogger) Errorf(format string, v ...interface{}) { l.log.Error(fmt.Sprintf(format, v...)) }

func addressParams(a model.Address) *stripe.AddressParams {
	opt := func(v string) *string {
		if v == "" {
			return nil
		}
		return stripe.String(v)
	}
	return &stripe.AddressParams{
		Line1:      opt(a.Line1),
		Line2:      opt(a.Line2),
		City:       opt(a.City),
		State:      opt(a.State),
		PostalCode: opt(a.PostalCode),
		Country:    opt(a.Country),
	}
}

func intentFrom(pi *stripe.PaymentIntent) Intent {
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}

// CreatePaymentIntent creates an intent with automatic payment methods.
func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, r IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(r.AmountCents),
		Currency: stripe.String(strings.ToLower(r.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if r.IdempotencyKey != "" {
		params.SetIdempotencyKey(r.IdempotencyKey)
	}
	if r.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(r.ReceiptEmail)
	}
	if r.Shipping != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name:    stripe.String(r.Shipping.Name),
			Address: addressParams(r.Shipping.Address),
		}
		if r.Shipping.Phone != "" {
			params.Shipping.Phone = stripe.String(r.Shipping.Phone)
		}
	}
	for k, v := range r.Metadata {
		params.AddMetadata(k, v)
	}
	if r.Destination != "" {
		params.ApplicationFeeAmount = stripe.Int64(r.ApplicationFeeCents)
		params.TransferData = &stripe.PaymentIntentTransferDataParams{Destination: stripe.String(r.Destination)}
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, apiError("create payment intent", err)
	}
	return intentFrom(pi), nil
}

// RetrievePaymentIntent fetches an intent by id.
func (c *HTTPClient) RetrievePaymentIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return Intent{}, apiError("retrieve payment intent", err)
	}
	return intentFrom(pi), nil
}

// CalculateTax runs a tax calculation. Totals are reported by the engine;
// subtotal is derived when the engine reports the total.
func (c *HTTPClient) CalculateTax(ctx context.Context, r tax.Request) (tax.Calculation, error) {
	params := &stripe.TaxCalculationParams{Currency: stripe.String(strings.ToLower(r.Currency))}
	params.Context = ctx
	for _, l := range r.Lines {
		params.LineItems = append(params.LineItems, &stripe.TaxCalculationLineItemParams{
			Amount:    stripe.Int64(l.AmountCents),
			Quantity:  stripe.Int64(l.Quantity),
			Reference: stripe.String(l.Reference),
		})
	}
	if r.ShippingCents > 0 {
		params.ShippingCost = &stripe.TaxCalculationShippingCostParams{Amount: stripe.Int64(r.ShippingCents)}
	}
	if r.Address != nil {
		params.CustomerDetails = &stripe.TaxCalculationCustomerDetailsParams{
			Address:       addressParams(*r.Address),
			AddressSource: stripe.String("shipping"),
		}
	}

	out, err := c.api.TaxCalculations.New(params)
	if err != nil {
		return tax.Calculation{}, apiError("calculate tax", err)
	}

	calc := tax.Calculation{ID: out.ID, TaxCents: out.TaxAmountExclusive}
	if out.AmountTotal > 0 {
		total := out.AmountTotal
		sub := total - out.TaxAmountExclusive
		if out.ShippingCost != nil {
			sub -= out.ShippingCost.Amount
		}
		calc.TotalCents, calc.SubtotalCents = &total, &sub
	}
	return calc, nil
}

func accountFrom(a *stripe.Account) model.ConnectAccount {
	out := model.ConnectAccount{
		AccountID:        a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
	if a.Requirements != nil {
		if raw, err := json.Marshal(a.Requirements); err == nil {
			_ = json.Unmarshal(raw, &out.Requirements)
		}
	}
	if len(a.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// RetrieveAccount fetches a sub-account's capability flags.
func (c *HTTPClient) RetrieveAccount(ctx context.Context, accountID string) (model.ConnectAccount, error) {
	if accountID == "" {
		return model.ConnectAccount{}, errors.New("payments: empty account id")
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	a, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return model.ConnectAccount{}, apiError("retrieve account", err)
	}
	return accountFrom(a), nil
}

// CreateAccount creates an express sub-account tagged with the selling group.
func (c *HTTPClient) CreateAccount(ctx context.Context, groupID, email string) (model.ConnectAccount, error) {
	params := &stripe.AccountParams{Type: stripe.String(string(stripe.AccountTypeExpress))}
	params.Context = ctx
	params.SetIdempotencyKey("connect-" + groupID)
	params.AddMetadata("sellingGroupId", groupID)
	if email != "" {
		params.Email = stripe.String(email)
	}
	a, err := c.api.Accounts.New(params)
	if err != nil {
		return model.ConnectAccount{}, apiError("create account", err)
	}
	return accountFrom(a), nil
}

// CreateOnboardingLink returns a hosted onboarding URL.
func (c *HTTPClient) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", apiError("create onboarding link", err)
	}
	return link.URL, nil
}
