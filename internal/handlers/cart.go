package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/platform/requestctx"
	"github.com/plateful/api/internal/services"
)

const maxCartBodySize = 4 * 1024

type cartItemRequest struct {
	DishID    *int64 `json:"dishId"`
	SetmealID *int64 `json:"setmealId"`
	Flavor    string `json:"flavor"`
}

// CartHandlers exposes the shopping cart endpoints for authenticated users.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listItems)
	r.Delete("/", h.clear)
	r.Post("/items", h.addItem)
	r.Post("/items:decrement", h.decrementItem)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req cartItemRequest
	if !decodeJSONBody(w, r, &req, maxCartBodySize) {
		return
	}

	item, err := h.carts.Add(ctx, services.AddItemCommand{
		UserID:    identity.UserID,
		DishID:    req.DishID,
		SetmealID: req.SetmealID,
		Flavor:    req.Flavor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildCartItemPayload(item))
}

func (h *CartHandlers) decrementItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req cartItemRequest
	if !decodeJSONBody(w, r, &req, maxCartBodySize) {
		return
	}

	item, err := h.carts.Decrement(ctx, services.AddItemCommand{
		UserID:    identity.UserID,
		DishID:    req.DishID,
		SetmealID: req.SetmealID,
		Flavor:    req.Flavor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildCartItemPayload(item))
}

func (h *CartHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	items, err := h.carts.List(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildCartItemPayload(item))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, identity.UserID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUser extracts the authenticated identity, writing a 401 when absent.
func requireUser(ctx context.Context, w http.ResponseWriter) (requestctx.Identity, bool) {
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok || identity.UserID == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return requestctx.Identity{}, false
	}
	return identity, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "malformed request body", http.StatusBadRequest))
		return false
	}
	return true
}
