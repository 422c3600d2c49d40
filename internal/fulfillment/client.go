// Package fulfillment submits paid physical orders to the print/ship
// provider and talks to its rate, order and webhook APIs.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/shipping"
)

// Recipient is the provider's ship-to block.
type Recipient struct {
	Name        string `json:"name,omitempty"`
	Address1    string `json:"address1,omitempty"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

func recipientFrom(a model.Address, email string) Recipient {
	return Recipient{
		Name:        a.Name,
		Address1:    a.Line1,
		Address2:    a.Line2,
		City:        a.City,
		StateCode:   a.State,
		CountryCode: a.Country,
		Zip:         a.PostalCode,
		Phone:       a.Phone,
		Email:       email,
	}
}

// Item is one provider line item. VariantID goes out under the same key
// as shipping.RateItem so rates and orders name one variant.
type Item struct {
	VariantID   string `json:"variant_id"`
	Quantity    int64  `json:"quantity"`
	RetailPrice string `json:"retail_price,omitempty"`
	Name        string `json:"name,omitempty"`
}

// OrderRequest creates a provider order. ExternalID is our order id and
// comes back on every provider webhook.
type OrderRequest struct {
	ExternalID string    `json:"external_id"`
	Recipient  Recipient `json:"recipient"`
	Items      []Item    `json:"items"`
}

// OrderResult is the created provider order.
type OrderResult struct {
	ID     string
	Status string
}

// Provider is the fulfillment provider contract.
type Provider interface {
	shipping.RateQuoter
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	SetWebhook(ctx context.Context, url string, types []string) error
}

// APIError is a non-2xx provider response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fulfillment: %d: %s", e.Status, e.Message)
}

// Client is the provider's JSON API client. Calls share one rate limiter.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient returns a Client allowing rps requests per second.
func NewClient(baseURL, apiKey string, rps float64, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fulfillment %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var env struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		return &APIError{Status: resp.StatusCode, Message: env.Error.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fulfillment decode %s: %w", path, err)
	}
	return nil
}

// QuoteRates asks for carrier rates. Prices come back as decimal strings.
func (c *Client) QuoteRates(ctx context.Context, r shipping.RateRequest) ([]model.ShippingRate, error) {
	in := struct {
		Recipient Recipient           `json:"recipient"`
		Items     []shipping.RateItem `json:"items"`
		Currency  string              `json:"currency,omitempty"`
	}{
		Recipient: recipientFrom(r.Address, ""),
		Items:     r.Items,
		Currency:  strings.ToUpper(r.Currency),
	}
	var out struct {
		Result []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Rate            string `json:"rate"`
			Currency        string `json:"currency"`
			MinDeliveryDays int    `json:"minDeliveryDays"`
			MaxDeliveryDays int    `json:"maxDeliveryDays"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/shipping/rates", in, &out); err != nil {
		return nil, err
	}

	rates := make([]model.ShippingRate, 0, len(out.Result))
	for _, r := range out.Result {
		cents, err := ToCents(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", r.ID, err)
		}
		rates = append(rates, model.ShippingRate{
			ID:              r.ID,
			Name:            r.Name,
			AmountCents:     cents,
			Currency:        strings.ToLower(r.Currency),
			MinDeliveryDays: r.MinDeliveryDays,
			MaxDeliveryDays: r.MaxDeliveryDays,
		})
	}
	return rates, nil
}

// CreateOrder submits an order for fulfillment.
func (c *Client) CreateOrder(ctx context.Context, r OrderRequest) (OrderResult, error) {
	var out struct {
		Result struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", r, &out); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{ID: out.Result.ID.String(), Status: out.Result.Status}, nil
}

// SetWebhook points provider events at url.
func (c *Client) SetWebhook(ctx context.Context, url string, types []string) error {
	in := struct {
		URL   string   `json:"url"`
		Types []string `json:"types"`
	}{URL: url, Types: types}
	return c.do(ctx, http.MethodPost, "/webhooks", in, nil)
}

// ToCents parses a decimal amount such as "4.99" into minor units.
func ToCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// FromCents formats minor units as a two-place decimal string.
func FromCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
