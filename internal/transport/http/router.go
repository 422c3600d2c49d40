package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/iliamunaev/checkout-core/internal/middleware"
)

type RouterOptions struct {
	Log      *slog.Logger
	Requests middleware.RequestObserver
	Metrics  http.Handler // served on /metrics when set
	Health   func(r *http.Request) error
}

// NewRouter mounts h's routes behind request id, panic recovery and
// request logging.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(opts.Log, opts.Requests))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(req); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Post("/checkout", h.HandleCheckout)
	r.Post("/webhooks/payments", h.HandlePaymentWebhook)
	r.Post("/webhooks/fulfillment", h.HandleFulfillmentWebhook)
	r.Get("/orders/{orderID}", h.HandleGetOrder)
	r.Post("/orders/{orderID}/dispatch", h.HandleDispatch)
	r.Post("/connect/{groupID}/onboarding", h.HandleOnboarding)
	r.Post("/connect/{groupID}/sync", h.HandleSync)
	return r
}
