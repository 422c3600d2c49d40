package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.ObserveRequest("/checkout", 200, 12*time.Millisecond)
	m.ObserveRequest("/checkout", 200, 3*time.Millisecond)
	m.ObserveRequest("/checkout", 400, time.Millisecond)
	m.ObserveCheckout("ok")
	m.ObserveCheckout("shipping_unavailable")
	m.ObserveCheckout("ok")
	m.ObserveWebhook("payments", "applied")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/checkout", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/checkout", "400")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Webhooks.WithLabelValues("payments", "applied")))
}

func TestHistogramsCollect(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.ObserveStep("tax", "ok", 20*time.Millisecond)
	m.ObserveTask("dispatch", "error", time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Steps))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Tasks))
}

// Two instances must not collide on registration.
func TestIsolatedRegistries(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestHandlerExposesFamilies(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.ObserveWebhook("fulfillment", "ignored")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `checkout_webhooks_total{outcome="ignored",source="fulfillment"} 1`)
}
