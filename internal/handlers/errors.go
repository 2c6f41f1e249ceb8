package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

// writeServiceError translates service-layer errors into the JSON envelope.
// Unrecognised errors become opaque 500s.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStaleState):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order changed concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrOutOfRange):
		httpx.WriteError(ctx, w, httpx.NewError("address_out_of_range", "delivery address is out of range", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrUpstream):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_failure", "upstream collaborator failure", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}
