// Package metrics exposes Prometheus collectors for the HTTP surface,
// checkout steps, webhook outcomes and background tasks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

var latencyBucketsMS = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	Steps     *prometheus.HistogramVec
	Checkouts *prometheus.CounterVec
	Webhooks  *prometheus.CounterVec
	Tasks     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   latencyBucketsMS,
		}, []string{"route"}),
		Steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_ms",
			Help:      "Checkout step latency in milliseconds.",
			Buckets:   latencyBucketsMS,
		}, []string{"step", "status"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome code.",
		}, []string{"code"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
		Tasks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "async_task_duration_ms",
			Help:      "Background task latency in milliseconds.",
			Buckets:   latencyBucketsMS,
		}, []string{"task", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Steps, m.Checkouts, m.Webhooks, m.Tasks)
	return m
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(ms(d))
}

func (m *Metrics) ObserveStep(step, status string, d time.Duration) {
	m.Steps.WithLabelValues(step, status).Observe(ms(d))
}

// ObserveCheckout counts a finished checkout; code is "ok" or an error code.
func (m *Metrics) ObserveCheckout(code string) {
	m.Checkouts.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveWebhook(source, outcome string) {
	m.Webhooks.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveTask(name, status string, d time.Duration) {
	m.Tasks.WithLabelValues(name, status).Observe(ms(d))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
