// Package apperr classifies caller-visible failures. Every error carries an
// HTTP status and a stable code the client can branch on.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Error is a structured caller-visible failure.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Kind returns the stable error code.
func (e *Error) Kind() string { return e.Code }

// Is matches on code so wrapped copies compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

var (
	ErrEmptyCart               = New(http.StatusBadRequest, "no_valid_items", "no valid items in cart")
	ErrShippingAddressRequired = New(http.StatusBadRequest, "shipping_address_required", "a complete shipping address is required")
	ErrShippingUnavailable     = New(http.StatusUnprocessableEntity, "shipping_unavailable", "no shipping rates are available for this address")
	ErrSellerConnectMissing    = New(http.StatusConflict, "seller_connect_missing", "seller has not connected a payment account")
	ErrSellerOnboarding        = New(http.StatusConflict, "seller_onboarding_incomplete", "seller payment account onboarding is incomplete")
	ErrInvalidSignature        = New(http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
	ErrInvalidPayload          = New(http.StatusBadRequest, "invalid_payload", "request body could not be parsed")
	ErrNotFound                = New(http.StatusNotFound, "not_found", "resource not found")
	ErrPaymentUnavailable      = New(http.StatusBadGateway, "payment_unavailable", "payment processor request failed")
)

// BadRequest returns a validation error with the given message.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "bad_request", message)
}

// Kind maps err to a stable code.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns a client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
