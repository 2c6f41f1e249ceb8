package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// CartRepository is the in-memory cart adapter. The store mutex makes Merge
// and Decrement atomic, so concurrent adds for the same (user, item) always
// land on one row.
type CartRepository struct {
	store *Store
}

// Merge inserts the row or increments the quantity of the existing row with
// the same item key.
func (r *CartRepository) Merge(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	key := item.ItemKey()
	if key == "" {
		return domain.CartItem{}, repositories.Wrap("cart.merge", errMissingItemRef)
	}

	rows := r.store.carts[item.UserID]
	if rows == nil {
		rows = make(map[string]domain.CartItem)
		r.store.carts[item.UserID] = rows
	}

	if existing, ok := rows[key]; ok {
		existing.Quantity += item.Quantity
		repositories.StampCartItem(&existing, time.Now())
		rows[key] = existing
		return existing, nil
	}

	repositories.StampCartItem(&item, time.Now())
	r.store.nextCartID++
	item.ID = r.store.nextCartID
	rows[key] = item
	return item, nil
}

// Decrement lowers the row's quantity by one, deleting it at zero.
func (r *CartRepository) Decrement(ctx context.Context, userID int64, key string) (domain.CartItem, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	rows := r.store.carts[userID]
	existing, ok := rows[key]
	if !ok {
		return domain.CartItem{}, repositories.NotFound("cart.decrement")
	}

	existing.Quantity--
	if existing.Quantity <= 0 {
		delete(rows, key)
		existing.Quantity = 0
		return existing, nil
	}
	repositories.StampCartItem(&existing, time.Now())
	rows[key] = existing
	return existing, nil
}

// List returns the user's cart rows in insertion order.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	rows := r.store.carts[userID]
	items := make([]domain.CartItem, 0, len(rows))
	for _, item := range rows {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Drain removes and returns every cart row for the user in one step.
func (r *CartRepository) Drain(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	rows := r.store.carts[userID]
	items := make([]domain.CartItem, 0, len(rows))
	for _, item := range rows {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	delete(r.store.carts, userID)
	return items, nil
}

// Clear removes every cart row for the user.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	delete(r.store.carts, userID)
	return nil
}

// InsertBatch stores pre-built rows, merging with any existing rows by key.
func (r *CartRepository) InsertBatch(ctx context.Context, items []domain.CartItem) error {
	for _, item := range items {
		if _, err := r.Merge(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

var errMissingItemRef = errors.New("cart item needs a dish or setmeal reference")
