package repositories

import (
	"context"
	"time"

	"github.com/plateful/api/internal/domain"
)

// UnitOfWork groups repository operations into a transactional boundary when
// the backing store supports one.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStatusUpdate describes a conditional status transition. The write takes
// effect only when the row's current status equals Expected; a zero-row match
// surfaces as a KindStale repository error. This is the sole synchronisation
// mechanism between concurrent transition callers.
type OrderStatusUpdate struct {
	ID       int64
	Expected domain.OrderStatus
	Status   domain.OrderStatus

	PayStatus       *domain.PayStatus
	CheckoutTime    *time.Time
	DeliveryTime    *time.Time
	CancelTime      *time.Time
	CancelReason    *string
	RejectionReason *string
}

// OrderSearchFilter narrows admin and user order listings.
type OrderSearchFilter struct {
	UserID *int64
	Status *domain.OrderStatus
	Number string
	Phone  string
	From   *time.Time
	To     *time.Time

	Page     int
	PageSize int
}

// OrderRepository persists orders and their immutable line items.
type OrderRepository interface {
	// Insert stores the order and its lines as one aggregate, assigning ids.
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID int64) (domain.Order, error)
	FindByNumber(ctx context.Context, number string) (domain.Order, error)
	ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error)
	// UpdateStatus applies a conditional compare-and-update write; see
	// OrderStatusUpdate for semantics.
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) error
	Search(ctx context.Context, filter OrderSearchFilter) (domain.Page[domain.Order], error)
	// ListByStatusBefore enumerates sweep candidates: orders in the given
	// status whose order time is strictly before the cutoff.
	ListByStatusBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time) ([]domain.Order, error)
	CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error)
}

// CartRepository persists per-user cart rows. Merge and Decrement must be
// atomic with respect to concurrent calls for the same (user, item key): two
// concurrent merges of the same item may never create two rows or lose an
// increment.
type CartRepository interface {
	// Merge inserts the item with its snapshot fields, or, when a row for the
	// same (user, item key) exists, atomically increments its quantity and
	// returns the merged row.
	Merge(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	// Decrement lowers the matching row's quantity by one, deleting the row
	// when it reaches zero. Absent rows yield a KindNotFound error.
	Decrement(ctx context.Context, userID int64, key string) (domain.CartItem, error)
	List(ctx context.Context, userID int64) ([]domain.CartItem, error)
	// Drain atomically removes and returns every cart row for the user. Rows
	// merged concurrently are either part of the returned snapshot or left in
	// the cart, never silently deleted.
	Drain(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID int64) error
	// InsertBatch stores pre-built rows, used when copying a past order back
	// into the cart.
	InsertBatch(ctx context.Context, items []domain.CartItem) error
}
