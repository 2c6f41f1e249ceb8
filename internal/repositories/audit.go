package repositories

import (
	"time"

	"github.com/plateful/api/internal/domain"
)

// StampOrder fills audit timestamps on an order before a write. Adapters call
// it explicitly at every insert/update site; there is no implicit field
// injection anywhere else.
func StampOrder(order *domain.Order, now time.Time) {
	if order == nil {
		return
	}
	now = now.UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
}

// StampCartItem fills audit timestamps on a cart row before a write.
func StampCartItem(item *domain.CartItem, now time.Time) {
	if item == nil {
		return
	}
	now = now.UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
}
