package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the persisted order lifecycle code. The integer values are a
// wire-level contract consumed by reporting and history views and must not change.
type OrderStatus int

const (
	OrderStatusPendingPayment     OrderStatus = 1
	OrderStatusToBeConfirmed      OrderStatus = 2
	OrderStatusConfirmed          OrderStatus = 3
	OrderStatusDeliveryInProgress OrderStatus = 4
	OrderStatusCompleted          OrderStatus = 5
	OrderStatusCancelled          OrderStatus = 6
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusPendingPayment:     "pending_payment",
	OrderStatusToBeConfirmed:      "to_be_confirmed",
	OrderStatusConfirmed:          "confirmed",
	OrderStatusDeliveryInProgress: "delivery_in_progress",
	OrderStatusCompleted:          "completed",
	OrderStatusCancelled:          "cancelled",
}

// String renders the status as a stable machine-readable label.
func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("order_status(%d)", int(s))
}

// Valid reports whether the code belongs to the closed status set.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PayStatus is the persisted payment state. Monotonic: unpaid, then paid, then
// refunded, never backwards. The integer values are part of the wire contract.
type PayStatus int

const (
	PayStatusUnpaid   PayStatus = 0
	PayStatusPaid     PayStatus = 1
	PayStatusRefunded PayStatus = 2
)

// String renders the pay status as a stable label.
func (s PayStatus) String() string {
	switch s {
	case PayStatusUnpaid:
		return "unpaid"
	case PayStatusPaid:
		return "paid"
	case PayStatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("pay_status(%d)", int(s))
	}
}

// Order is a persisted purchase request moving through the status lifecycle.
// Orders are created once at submit and mutated only by the lifecycle engine;
// they are never physically deleted.
type Order struct {
	ID        int64
	Number    string
	UserID    int64
	Status    OrderStatus
	PayStatus PayStatus

	// Amount is the order total in minor currency units.
	Amount int64

	// Address snapshot copied from the address directory at submit time.
	Consignee string
	Phone     string
	Address   string
	Remark    string

	OrderTime    time.Time
	CheckoutTime *time.Time
	DeliveryTime *time.Time
	CancelTime   *time.Time

	CancelReason    string
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Lines is populated on detail reads; list queries may leave it nil.
	Lines []OrderLine
}

// OrderLine is an immutable snapshot of one purchased catalog item. It records
// what was actually sold, independent of later catalog edits.
type OrderLine struct {
	ID        int64
	OrderID   int64
	DishID    *int64
	SetmealID *int64
	Name      string
	Flavor    string
	Image     string
	Quantity  int
	// Amount is the unit price in minor currency units at submit time.
	Amount int64
}

// Total returns the line total in minor currency units.
func (l OrderLine) Total() int64 {
	return l.Amount * int64(l.Quantity)
}

// CartItem is a mutable per-user quantity counter for one catalog item prior to
// checkout. Exactly one of DishID/SetmealID is set; for a given
// (user, item, flavor) at most one row exists.
type CartItem struct {
	ID        int64
	UserID    int64
	DishID    *int64
	SetmealID *int64
	Flavor    string
	Name      string
	Image     string
	Quantity  int
	// Amount is the unit price snapshot in minor currency units.
	Amount    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemKey identifies the cart row within a user's cart: catalog item plus
// flavor selection. Two adds with the same key merge into one row.
func (c CartItem) ItemKey() string {
	switch {
	case c.DishID != nil:
		return fmt.Sprintf("dish:%d|%s", *c.DishID, c.Flavor)
	case c.SetmealID != nil:
		return fmt.Sprintf("setmeal:%d", *c.SetmealID)
	default:
		return ""
	}
}

// Address is the delivery destination resolved from the external address
// directory at submit time.
type Address struct {
	ID        int64
	Consignee string
	Phone     string
	Full      string
}

// CatalogItem is a priced catalog entry resolved from the external catalog
// service when a new cart row is created.
type CatalogItem struct {
	Name      string
	UnitPrice int64
	Image     string
}

// OrderStatistics carries the admin dashboard counts of in-flight orders.
type OrderStatistics struct {
	ToBeConfirmed      int
	Confirmed          int
	DeliveryInProgress int
}

// Page is a limit/offset page of results with the total row count.
type Page[T any] struct {
	Total int64
	Items []T
}
