package services

import (
	"context"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// SubmitOrderCommand carries the inputs for turning a cart into an order.
type SubmitOrderCommand struct {
	UserID    int64
	AddressID int64
	Remark    string
}

// OrderSubmission is returned to the customer after a successful submit.
type OrderSubmission struct {
	ID        int64
	Number    string
	Amount    int64
	OrderTime time.Time
}

// CancelOrderCommand carries a cancellation request from a user or an admin.
type CancelOrderCommand struct {
	OrderID int64
	Reason  string
	// ByUser restricts the allowed source states to the user-cancellable set.
	ByUser bool
}

// PaymentIntent is the mock payment payload handed to the client; the real
// gateway integration lives outside this service.
type PaymentIntent struct {
	OrderNumber string
	Amount      int64
	NonceStr    string
	SignedAt    time.Time
}

// OrderService is the order lifecycle engine: it validates and applies every
// status transition through conditional writes, and emits events after a
// committed change.
type OrderService interface {
	Submit(ctx context.Context, cmd SubmitOrderCommand) (OrderSubmission, error)
	RequestPayment(ctx context.Context, userID int64, orderNumber string) (PaymentIntent, error)
	ConfirmPayment(ctx context.Context, orderNumber string) error
	Confirm(ctx context.Context, orderID int64) error
	Reject(ctx context.Context, orderID int64, reason string) error
	Cancel(ctx context.Context, cmd CancelOrderCommand) error
	Deliver(ctx context.Context, orderID int64) error
	Complete(ctx context.Context, orderID int64) error
	Remind(ctx context.Context, orderID int64) error

	// Sweeper-driven transitions.
	ExpireUnpaid(ctx context.Context, orderID int64) error
	RecoverStuckDelivery(ctx context.Context, orderID int64) error

	GetOrder(ctx context.Context, orderID int64) (domain.Order, error)
	ListUserOrders(ctx context.Context, userID int64, status *domain.OrderStatus, page, pageSize int) (domain.Page[domain.Order], error)
	Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error)
	Statistics(ctx context.Context) (domain.OrderStatistics, error)
	Repeat(ctx context.Context, userID, orderID int64) error
}

// AddItemCommand identifies a catalog item to add to the user's cart.
type AddItemCommand struct {
	UserID    int64
	DishID    *int64
	SetmealID *int64
	Flavor    string
}

// CartService owns the per-user cart rows prior to checkout.
type CartService interface {
	Add(ctx context.Context, cmd AddItemCommand) (domain.CartItem, error)
	Decrement(ctx context.Context, cmd AddItemCommand) (domain.CartItem, error)
	List(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID int64) error
}

// CatalogService resolves current price and display data for a catalog item,
// provided by the excluded catalog subsystem.
type CatalogService interface {
	ResolveItem(ctx context.Context, dishID, setmealID *int64) (domain.CatalogItem, error)
}

// AddressDirectory resolves delivery addresses, provided by the excluded
// address-book subsystem.
type AddressDirectory interface {
	GetAddress(ctx context.Context, addressID int64) (domain.Address, error)
}

// DeliveryRangeChecker validates that an address is inside the shop's delivery
// range, typically by calling an external geocoding service.
type DeliveryRangeChecker interface {
	CheckRange(ctx context.Context, address string) error
}

// OrderEventKind tags order events emitted after committed transitions.
type OrderEventKind string

const (
	OrderEventNewOrder      OrderEventKind = "new_order"
	OrderEventReminder      OrderEventKind = "reminder"
	OrderEventStatusChanged OrderEventKind = "status_changed"
)

// OrderEvent describes a committed lifecycle change for downstream consumers:
// the admin notification hub and the event stream.
type OrderEvent struct {
	Kind           OrderEventKind
	OrderID        int64
	OrderNumber    string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	OccurredAt     time.Time
}

// OrderEventPublisher delivers order events best-effort. Publish failures are
// logged by the engine and never fail the transition that produced the event.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
