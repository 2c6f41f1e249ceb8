package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterServesHealthEndpoints(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("healthz payload = %+v", payload)
	}
}

func TestRouterReadyzReportsFailingDependency(t *testing.T) {
	health := NewHealthHandlers(
		WithHealthCheck("postgres", PingerFunc(func(context.Context) error {
			return errors.New("connection refused")
		})),
	)
	router := NewRouter(WithHealthHandlers(health))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}

	var payload struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if payload.Status != "unavailable" || payload.Checks["postgres"] != "unavailable" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestRouterUnknownRouteIsJSON404(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestRouterAppliesGroupMiddlewares(t *testing.T) {
	var userGroupSeen, webhookGroupSeen bool
	marker := func(seen *bool) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*seen = true
				next.ServeHTTP(w, r)
			})
		}
	}

	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	router := NewRouter(
		WithOrderRoutes(func(r chi.Router) { r.Get("/", ok) }),
		WithWebhookRoutes(func(r chi.Router) { r.Post("/payment", ok) }),
		WithUserMiddlewares(marker(&userGroupSeen)),
		WithWebhookMiddlewares(marker(&webhookGroupSeen)),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("orders status = %d", rec.Code)
	}
	if !userGroupSeen {
		t.Fatal("user middleware did not run on /orders")
	}
	if webhookGroupSeen {
		t.Fatal("webhook middleware leaked onto /orders")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("webhook status = %d", rec.Code)
	}
	if !webhookGroupSeen {
		t.Fatal("webhook middleware did not run on /webhooks")
	}
}

func TestRouterMountsMetricsHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP plateful_api_requests_total\n"))
	})
	router := NewRouter(WithMetricsHandler(metrics))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("metrics body is empty")
	}
}
