package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/platform/pagination"
	"github.com/plateful/api/internal/repositories"
	"github.com/plateful/api/internal/services"
)

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

type orderStatisticsResponse struct {
	ToBeConfirmed      int `json:"toBeConfirmed"`
	Confirmed          int `json:"confirmed"`
	DeliveryInProgress int `json:"deliveryInProgress"`
}

// AdminOrderHandlers exposes the merchant-side order management endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.searchOrders)
	r.Get("/orders/statistics", h.statistics)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:confirm", h.confirm)
	r.Post("/orders/{orderID}:reject", h.reject)
	r.Post("/orders/{orderID}:delivery", h.deliver)
	r.Post("/orders/{orderID}:complete", h.complete)
	r.Post("/orders/{orderID}:cancel", h.cancel)
}

func (h *AdminOrderHandlers) searchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := pagination.Parse(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := repositories.OrderSearchFilter{
		Number:   strings.TrimSpace(query.Get("number")),
		Phone:    strings.TrimSpace(query.Get("phone")),
		Page:     params.Page,
		PageSize: params.PageSize,
	}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.To = &to
	}

	page, err := h.orders.Search(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderPage(page))
}

func (h *AdminOrderHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.orders.Statistics(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderStatisticsResponse{
		ToBeConfirmed:      stats.ToBeConfirmed,
		Confirmed:          stats.Confirmed,
		DeliveryInProgress: stats.DeliveryInProgress,
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(orderID int64) error {
		return h.orders.Confirm(r.Context(), orderID)
	})
}

func (h *AdminOrderHandlers) reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req rejectOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	if err := h.orders.Reject(ctx, orderID, strings.TrimSpace(req.Reason)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminOrderHandlers) deliver(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(orderID int64) error {
		return h.orders.Deliver(r.Context(), orderID)
	})
}

func (h *AdminOrderHandlers) complete(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(orderID int64) error {
		return h.orders.Complete(r.Context(), orderID)
	})
}

func (h *AdminOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		ByUser:  false,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminOrderHandlers) applyTransition(w http.ResponseWriter, r *http.Request, apply func(orderID int64) error) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	if err := apply(orderID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
