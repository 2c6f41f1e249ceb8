package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

type paymentCallbackRequest struct {
	OrderNumber string `json:"orderNumber"`
	TradeNumber string `json:"tradeNumber"`
}

// WebhookHandlers receives callbacks from the payment gateway. The gateway
// retries on non-2xx responses, so the payment callback must be idempotent.
type WebhookHandlers struct {
	orders  services.OrderService
	limiter rateLimiter
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{
		orders:  orders,
		limiter: newWindowRateLimiter(60, time.Minute, nil),
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment", h.paymentSucceeded)
}

func (h *WebhookHandlers) paymentSucceeded(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many callback requests", http.StatusTooManyRequests))
		return
	}

	var req paymentCallbackRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.ConfirmPayment(ctx, number); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
