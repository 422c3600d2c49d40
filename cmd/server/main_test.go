package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iliamunaev/checkout-core/internal/app"
	"github.com/iliamunaev/checkout-core/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg, err := config.Load(func(string) string { return "" })
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(newServer("", a.Router, cfg.RequestTimeout).Handler)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if id := resp.Header.Get("X-Request-Id"); id == "" {
		t.Fatal("expected X-Request-Id header")
	}
}

func TestCheckoutRejectsGet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/checkout")
	if err != nil {
		t.Fatalf("get /checkout: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestNewServerTimeouts(t *testing.T) {
	t.Parallel()

	srv := newServer(":0", http.NotFoundHandler(), 10*time.Second)
	if srv.WriteTimeout <= 10*time.Second {
		t.Fatalf("write timeout %v must exceed the request timeout", srv.WriteTimeout)
	}
	if srv.ReadHeaderTimeout != 3*time.Second {
		t.Fatalf("expected read header timeout 3s, got %v", srv.ReadHeaderTimeout)
	}
}
