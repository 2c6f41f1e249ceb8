package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// OrderRepository is the Postgres order adapter.
type OrderRepository struct {
	provider *Provider
}

const orderColumns = `id, number, user_id, status, pay_status, amount, consignee, phone, address, remark,
order_time, checkout_time, delivery_time, cancel_time, cancel_reason, rejection_reason, created_at, updated_at`

// Insert stores the order and its lines as one aggregate. Callers wanting the
// cart cleared in the same transaction wrap the call in the unit of work.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	q := r.provider.querier(ctx)

	repositories.StampOrder(&order, time.Now())

	row := q.QueryRow(ctx, `
INSERT INTO orders (number, user_id, status, pay_status, amount, consignee, phone, address, remark,
                    order_time, cancel_reason, rejection_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', '', $11, $12)
RETURNING id`,
		order.Number, order.UserID, order.Status, order.PayStatus, order.Amount,
		order.Consignee, order.Phone, order.Address, order.Remark,
		order.OrderTime, order.CreatedAt, order.UpdatedAt,
	)
	if err := row.Scan(&order.ID); err != nil {
		return domain.Order{}, mapError("order.insert", err)
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		lineRow := q.QueryRow(ctx, `
INSERT INTO order_lines (order_id, dish_id, setmeal_id, name, flavor, image, quantity, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
			line.OrderID, line.DishID, line.SetmealID, line.Name, line.Flavor, line.Image, line.Quantity, line.Amount,
		)
		if err := lineRow.Scan(&line.ID); err != nil {
			return domain.Order{}, mapError("order.insert_line", err)
		}
	}

	return order, nil
}

// FindByID returns the order without its lines.
func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	row := r.provider.querier(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row, "order.find")
}

// FindByNumber returns the order with the external-facing number.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	row := r.provider.querier(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE number = $1`, strings.TrimSpace(number))
	return scanOrder(row, "order.find_by_number")
}

// ListLines returns the immutable line snapshot for an order.
func (r *OrderRepository) ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	rows, err := r.provider.querier(ctx).Query(ctx, `
SELECT id, order_id, dish_id, setmeal_id, name, flavor, image, quantity, amount
FROM order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, mapError("order.list_lines", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.DishID, &line.SetmealID,
			&line.Name, &line.Flavor, &line.Image, &line.Quantity, &line.Amount); err != nil {
			return nil, mapError("order.list_lines", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("order.list_lines", err)
	}
	return lines, nil
}

// UpdateStatus compiles the transition into a single conditional UPDATE. Zero
// affected rows means the expected status no longer holds: either the order is
// gone (KindNotFound) or a concurrent transition won (KindStale).
func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) error {
	q := r.provider.querier(ctx)

	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{update.Status, time.Now().UTC()}
	next := 3

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}
	if update.PayStatus != nil {
		appendSet("pay_status", *update.PayStatus)
	}
	if update.CheckoutTime != nil {
		appendSet("checkout_time", *update.CheckoutTime)
	}
	if update.DeliveryTime != nil {
		appendSet("delivery_time", *update.DeliveryTime)
	}
	if update.CancelTime != nil {
		appendSet("cancel_time", *update.CancelTime)
	}
	if update.CancelReason != nil {
		appendSet("cancel_reason", *update.CancelReason)
	}
	if update.RejectionReason != nil {
		appendSet("rejection_reason", *update.RejectionReason)
	}

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), next, next+1)
	args = append(args, update.ID, update.Expected)

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return mapError("order.update_status", err)
	}
	if tag.RowsAffected() == 0 {
		exists := false
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, update.ID).Scan(&exists); err != nil {
			return mapError("order.update_status", err)
		}
		if !exists {
			return repositories.NotFound("order.update_status")
		}
		return repositories.Stale("order.update_status")
	}
	return nil
}

// Search filters and pages orders, newest first.
func (r *OrderRepository) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error) {
	conds := []string{"TRUE"}
	args := []any{}
	next := 1

	appendCond := func(cond string, value any) {
		conds = append(conds, fmt.Sprintf(cond, next))
		args = append(args, value)
		next++
	}
	if filter.UserID != nil {
		appendCond("user_id = $%d", *filter.UserID)
	}
	if filter.Status != nil {
		appendCond("status = $%d", *filter.Status)
	}
	if filter.Number != "" {
		appendCond("number LIKE '%%' || $%d || '%%'", filter.Number)
	}
	if filter.Phone != "" {
		appendCond("phone LIKE '%%' || $%d || '%%'", filter.Phone)
	}
	if filter.From != nil {
		appendCond("order_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		appendCond("order_time <= $%d", *filter.To)
	}

	where := strings.Join(conds, " AND ")
	q := r.provider.querier(ctx)

	var total int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE "+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, mapError("order.search", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 10
	}
	query := fmt.Sprintf("SELECT %s FROM orders WHERE %s ORDER BY order_time DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, next, next+1)
	args = append(args, size, (page-1)*size)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, mapError("order.search", err)
	}
	defer rows.Close()

	items := make([]domain.Order, 0, size)
	for rows.Next() {
		order, err := scanOrder(rows, "order.search")
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		items = append(items, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, mapError("order.search", err)
	}
	return domain.Page[domain.Order]{Total: total, Items: items}, nil
}

// ListByStatusBefore enumerates sweep candidates.
func (r *OrderRepository) ListByStatusBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time) ([]domain.Order, error) {
	rows, err := r.provider.querier(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND order_time < $2 ORDER BY id`,
		status, cutoff)
	if err != nil {
		return nil, mapError("order.list_by_status", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows, "order.list_by_status")
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("order.list_by_status", err)
	}
	return orders, nil
}

// CountByStatus counts orders currently in the given status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	var count int
	err := r.provider.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, mapError("order.count_by_status", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, op string) (domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID, &order.Number, &order.UserID, &order.Status, &order.PayStatus, &order.Amount,
		&order.Consignee, &order.Phone, &order.Address, &order.Remark,
		&order.OrderTime, &order.CheckoutTime, &order.DeliveryTime, &order.CancelTime,
		&order.CancelReason, &order.RejectionReason, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, mapError(op, err)
	}
	return order, nil
}
