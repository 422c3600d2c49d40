package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
)

// kinder is satisfied by domain errors
// that carry a classification kind.
type kinder interface {
	Kind() string
}

// kindToStatus maps kinds of errors that do not carry their own status.
var kindToStatus = map[string]int{
	"bad_request": http.StatusBadRequest,
}

// errorKind returns the kind of an error.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
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

func httpStatus(err error) int {
	var e *apperr.Error
	if !errors.As(err, &e) {
		if s, ok := kindToStatus[errorKind(err)]; ok {
			return s
		}
	}
	return apperr.HTTPStatus(err)
}

// errorPayload builds the client-facing body. Internal failures never leak
// their message.
func errorPayload(err error) model.ErrorPayload {
	return model.ErrorPayload{
		Status:  httpStatus(err),
		Code:    errorKind(err),
		Message: apperr.Message(err),
	}
}

func writeError(w http.ResponseWriter, err error) {
	p := errorPayload(err)
	writeJSON(w, p.Status, p)
}
