package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/platform/pagination"
	"github.com/plateful/api/internal/services"
)

const maxOrderBodySize = 8 * 1024

type submitOrderRequest struct {
	AddressID int64  `json:"addressId"`
	Remark    string `json:"remark"`
}

type submitOrderResponse struct {
	ID        int64  `json:"id"`
	Number    string `json:"number"`
	Amount    int64  `json:"amount"`
	OrderTime string `json:"orderTime"`
}

type requestPaymentRequest struct {
	OrderNumber string `json:"orderNumber"`
}

type paymentIntentResponse struct {
	OrderNumber string `json:"orderNumber"`
	Amount      int64  `json:"amount"`
	NonceStr    string `json:"nonceStr"`
	SignedAt    string `json:"signedAt"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes the order endpoints for authenticated users.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
	r.Get("/", h.listOrders)
	r.Post("/payment", h.requestPayment)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:remind", h.remind)
	r.Post("/{orderID}:repeat", h.repeat)
}

func (h *OrderHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req submitOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	submission, err := h.orders.Submit(ctx, services.SubmitOrderCommand{
		UserID:    identity.UserID,
		AddressID: req.AddressID,
		Remark:    strings.TrimSpace(req.Remark),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitOrderResponse{
		ID:        submission.ID,
		Number:    submission.Number,
		Amount:    submission.Amount,
		OrderTime: submission.OrderTime.Format(time.RFC3339),
	})
}

func (h *OrderHandlers) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req requestPaymentRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	intent, err := h.orders.RequestPayment(ctx, identity.UserID, strings.TrimSpace(req.OrderNumber))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentIntentResponse{
		OrderNumber: intent.OrderNumber,
		Amount:      intent.Amount,
		NonceStr:    intent.NonceStr,
		SignedAt:    intent.SignedAt.Format(time.RFC3339),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.Parse(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var status *domain.OrderStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
			return
		}
		status = &parsed
	}

	page, err := h.orders.ListUserOrders(ctx, identity.UserID, status, params.Page, params.PageSize)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderPage(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if order.UserID != identity.UserID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}

	if !h.ownsOrder(w, r, identity.UserID, orderID) {
		return
	}

	err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		ByUser:  true,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) remind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	if !h.ownsOrder(w, r, identity.UserID, orderID) {
		return
	}

	if err := h.orders.Remind(ctx, orderID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) repeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	if err := h.orders.Repeat(ctx, identity.UserID, orderID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownsOrder rejects access to other users' orders with 404 rather than 403 so
// order ids are not probeable.
func (h *OrderHandlers) ownsOrder(w http.ResponseWriter, r *http.Request, userID, orderID int64) bool {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return false
	}
	if order.UserID != userID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return false
	}
	return true
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	status := domain.OrderStatus(code)
	return status, status.Valid()
}

func buildOrderPage(page domain.Page[domain.Order]) pagePayload[orderPayload] {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return pagePayload[orderPayload]{Total: page.Total, Items: items}
}
