// Package httptransport implements the HTTP transport layer
// for checkout, webhooks and seller onboarding.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/payments"
	"github.com/iliamunaev/checkout-core/internal/store"
)

const maxWebhookBody = 1 << 20

type checkoutService interface {
	Checkout(ctx context.Context, req model.CheckoutRequest) (model.CheckoutResponse, error)
}

type reconciler interface {
	HandlePayment(ctx context.Context, body []byte, signature string) (string, error)
	HandleFulfillmentEvent(ctx context.Context, body []byte, h http.Header) (string, error)
}

type orderReader interface {
	Order(ctx context.Context, key store.Key) (model.Order, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, orderID string) error
}

type onboarder interface {
	Onboard(ctx context.Context, groupID, email, refreshURL, returnURL string) (model.ConnectAccount, string, error)
	Sync(ctx context.Context, groupID string) (model.ConnectAccount, error)
}

type Deps struct {
	Checkout   checkoutService
	Webhooks   reconciler
	Orders     orderReader
	Dispatcher dispatcher
	Accounts   onboarder

	// PublicBaseURL prefixes onboarding return and refresh links.
	PublicBaseURL  string
	RequestTimeout time.Duration
}

// Handler handles HTTP requests to the checkout core.
type Handler struct {
	checkout   checkoutService
	webhooks   reconciler
	orders     orderReader
	dispatcher dispatcher
	accounts   onboarder

	publicBaseURL  string
	requestTimeout time.Duration
}

// New returns a Handler.
//
// It panics if any dependency is nil. If RequestTimeout is non-positive,
// a default timeout is applied.
func New(d Deps) *Handler {
	if d.Checkout == nil || d.Webhooks == nil || d.Orders == nil || d.Dispatcher == nil || d.Accounts == nil {
		panic("httptransport.New: nil dependency")
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 10 * time.Second
	}
	return &Handler{
		checkout:       d.Checkout,
		webhooks:       d.Webhooks,
		orders:         d.Orders,
		dispatcher:     d.Dispatcher,
		accounts:       d.Accounts,
		publicBaseURL:  strings.TrimRight(d.PublicBaseURL, "/"),
		requestTimeout: d.RequestTimeout,
	}
}

// HandleCheckout prices the cart, persists the order and returns the
// payment intent's client secret.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckout(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	// Set a deadline for the whole checkout
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.checkout.Checkout(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// HandlePaymentWebhook acknowledges processor events. Only signature and
// parse failures are 4xx; a store failure is 500 so the processor retries.
func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, apperr.ErrInvalidPayload)
		return
	}
	outcome, err := h.webhooks.HandlePayment(r.Context(), body, r.Header.Get(payments.SignatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Outcome: outcome})
}

func (h *Handler) HandleFulfillmentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, apperr.ErrInvalidPayload)
		return
	}
	outcome, err := h.webhooks.HandleFulfillmentEvent(r.Context(), body, r.Header)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Outcome: outcome})
}

// HandleGetOrder returns the order for status polling.
func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Order(r.Context(), store.ByOrder(chi.URLParam(r, "orderID")))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apperr.ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HandleDispatch retries fulfillment submission for a paid order.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	err := h.dispatcher.Dispatch(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apperr.ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.orders.Order(ctx, store.ByOrder(orderID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type onboardingRequest struct {
	Email string `json:"email"`
}

type onboardingResponse struct {
	Account model.ConnectAccount `json:"account"`
	URL     string               `json:"url"`
}

// HandleOnboarding creates the group's sub-account when missing and returns
// a hosted onboarding link.
func (h *Handler) HandleOnboarding(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req onboardingRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, apperr.BadRequest("invalid JSON"))
			return
		}
	}

	base := h.publicBaseURL + "/connect/" + groupID
	acct, link, err := h.accounts.Onboard(r.Context(), groupID, req.Email, base+"/refresh", base+"/return")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{Account: acct, URL: link})
}

// HandleSync refreshes the group's sub-account from the processor.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Sync(r.Context(), chi.URLParam(r, "groupID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apperr.ErrSellerConnectMissing)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
