package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/notifications"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/platform/requestctx"

	"go.uber.org/zap"
)

const streamHeartbeatInterval = 30 * time.Second

// NotificationHandlers streams admin order notifications over SSE.
type NotificationHandlers struct {
	hub               *notifications.Hub
	heartbeatInterval time.Duration
}

// NewNotificationHandlers constructs a new NotificationHandlers instance.
func NewNotificationHandlers(hub *notifications.Hub) *NotificationHandlers {
	return &NotificationHandlers{
		hub:               hub,
		heartbeatInterval: streamHeartbeatInterval,
	}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stream", h.stream)
}

// stream holds the connection open, pushing notifications as SSE events and a
// comment heartbeat to keep intermediaries from closing the socket.
func (h *NotificationHandlers) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}

	subscription := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subscription.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	logger := requestctx.Logger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case notification, open := <-subscription.C:
			if !open {
				return
			}
			data, err := json.Marshal(notification)
			if err != nil {
				logger.Warn("notification marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: order\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
