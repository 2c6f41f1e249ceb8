package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// CartRepository is the Postgres cart adapter. Merge relies on the
// (user_id, item_key) unique index plus an upsert, so concurrent adds of
// the same item collapse into one row with an atomic quantity increment.
type CartRepository struct {
	provider *Provider
}

const cartColumns = `id, user_id, dish_id, setmeal_id, flavor, name, image, quantity, amount, created_at, updated_at`

// Merge inserts the row or atomically increments the quantity of the existing
// row with the same item key.
func (r *CartRepository) Merge(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	key := item.ItemKey()
	if key == "" {
		return domain.CartItem{}, repositories.Wrap("cart.merge", errors.New("cart item needs a dish or setmeal reference"))
	}
	repositories.StampCartItem(&item, time.Now())

	row := r.provider.querier(ctx).QueryRow(ctx, `
INSERT INTO cart_items (user_id, item_key, dish_id, setmeal_id, flavor, name, image, quantity, amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id, item_key)
DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
RETURNING `+cartColumns,
		item.UserID, key, item.DishID, item.SetmealID, item.Flavor, item.Name, item.Image,
		item.Quantity, item.Amount, item.CreatedAt, item.UpdatedAt,
	)
	return scanCartItem(row, "cart.merge")
}

// Decrement lowers the row's quantity by one, deleting it at zero. Both
// branches are conditional statements, so racing decrements cannot drive the
// quantity negative. A racing decrement can move the row between the two
// branches (quantity 2 becomes 1 after the delete missed), so a missed
// branch retries the other one before reporting the row gone.
func (r *CartRepository) Decrement(ctx context.Context, userID int64, key string) (domain.CartItem, error) {
	q := r.provider.querier(ctx)

	for attempt := 0; attempt < 2; attempt++ {
		row := q.QueryRow(ctx, `
DELETE FROM cart_items WHERE user_id = $1 AND item_key = $2 AND quantity = 1
RETURNING `+cartColumns, userID, key)
		item, err := scanCartItem(row, "cart.decrement")
		if err == nil {
			item.Quantity = 0
			return item, nil
		}
		if !repositories.IsNotFound(err) {
			return domain.CartItem{}, err
		}

		row = q.QueryRow(ctx, `
UPDATE cart_items SET quantity = quantity - 1, updated_at = $3
WHERE user_id = $1 AND item_key = $2 AND quantity > 1
RETURNING `+cartColumns, userID, key, time.Now().UTC())
		item, err = scanCartItem(row, "cart.decrement")
		if err == nil || !repositories.IsNotFound(err) {
			return item, err
		}
	}
	return domain.CartItem{}, repositories.NotFound("cart.decrement")
}

// List returns the user's cart rows in insertion order.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := r.provider.querier(ctx).Query(ctx,
		`SELECT `+cartColumns+` FROM cart_items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, mapError("cart.list", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows, "cart.list")
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("cart.list", err)
	}
	return items, nil
}

// Drain removes and returns every cart row for the user. The single
// DELETE ... RETURNING statement locks the rows it removes, so a concurrently
// merged row is either returned here or survives in the cart.
func (r *CartRepository) Drain(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := r.provider.querier(ctx).Query(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 RETURNING `+cartColumns, userID)
	if err != nil {
		return nil, mapError("cart.drain", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows, "cart.drain")
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("cart.drain", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Clear removes every cart row for the user.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.provider.querier(ctx).Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return mapError("cart.clear", err)
	}
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

func scanCartItem(row rowScanner, op string) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(
		&item.ID, &item.UserID, &item.DishID, &item.SetmealID, &item.Flavor,
		&item.Name, &item.Image, &item.Quantity, &item.Amount, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.CartItem{}, mapError(op, err)
	}
	return item, nil
}
