// Package notifications fans committed order events out to connected admin
// clients. Delivery is best-effort: a slow or absent subscriber never blocks
// the order transition that produced the event.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plateful/api/internal/services"
)

// Notification type codes on the admin wire. The values are a client contract.
const (
	TypeNewOrder = 1
	TypeReminder = 2
)

// Notification is the payload pushed to admin clients.
type Notification struct {
	Type        int       `json:"type"`
	OrderID     int64     `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Content     string    `json:"content"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Subscription is one admin client's feed. Close it via Hub.Unsubscribe.
type Subscription struct {
	ID string
	C  <-chan Notification
}

// HubOptions tunes hub construction.
type HubOptions struct {
	// BufferSize is the per-subscriber channel depth. A subscriber that falls
	// further behind loses notifications rather than blocking the hub.
	BufferSize int
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Hub is an in-process broadcast registry of admin subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Notification
	bufferSize  int
	logger      func(context.Context, string, map[string]any)
}

// NewHub constructs an empty hub.
func NewHub(opts HubOptions) *Hub {
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Hub{
		subscribers: make(map[string]chan Notification),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new admin feed.
func (h *Hub) Subscribe() Subscription {
	ch := make(chan Notification, h.bufferSize)
	id := uuid.NewString()

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return Subscription{ID: id, C: ch}
}

// Unsubscribe removes the feed and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

// SubscriberCount reports the number of connected feeds.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// PublishOrderEvent translates paid-order and reminder events into admin
// notifications. Other event kinds are not admin-facing and are dropped.
func (h *Hub) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	var notificationType int
	switch event.Kind {
	case services.OrderEventNewOrder:
		notificationType = TypeNewOrder
	case services.OrderEventReminder:
		notificationType = TypeReminder
	default:
		return nil
	}

	h.broadcast(ctx, Notification{
		Type:        notificationType,
		OrderID:     event.OrderID,
		OrderNumber: event.OrderNumber,
		Content:     "order number: " + event.OrderNumber,
		OccurredAt:  event.OccurredAt,
	})
	return nil
}

func (h *Hub) broadcast(ctx context.Context, notification Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- notification:
		default:
			// Subscriber buffer is full; drop rather than block the caller.
			h.logger(ctx, "notifications.dropped", map[string]any{
				"subscriberId": id,
				"orderId":      notification.OrderID,
			})
		}
	}
}
