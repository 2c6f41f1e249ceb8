package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// OrderRepository is the in-memory order adapter.
type OrderRepository struct {
	store *Store
}

// Insert stores the order and its lines, assigning ids.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, exists := r.store.ordersByNum[order.Number]; exists {
		return domain.Order{}, repositories.Conflict("order.insert", errors.New("duplicate order number"))
	}

	repositories.StampOrder(&order, time.Now())

	r.store.nextOrderID++
	order.ID = r.store.nextOrderID

	lines := make([]domain.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		r.store.nextLineID++
		line.ID = r.store.nextLineID
		line.OrderID = order.ID
		lines[i] = line
	}
	order.Lines = nil

	r.store.orders[order.ID] = order
	r.store.ordersByNum[order.Number] = order.ID
	r.store.lines[order.ID] = lines

	order.Lines = cloneLines(lines)
	return order, nil
}

// FindByID returns the order without its lines.
func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("order.find")
	}
	return order, nil
}

// FindByNumber returns the order with the external-facing number.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	id, ok := r.store.ordersByNum[strings.TrimSpace(number)]
	if !ok {
		return domain.Order{}, repositories.NotFound("order.find_by_number")
	}
	return r.store.orders[id], nil
}

// ListLines returns the immutable line snapshot for an order.
func (r *OrderRepository) ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, ok := r.store.orders[orderID]; !ok {
		return nil, repositories.NotFound("order.list_lines")
	}
	return cloneLines(r.store.lines[orderID]), nil
}

// UpdateStatus applies a compare-and-update write on the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	order, ok := r.store.orders[update.ID]
	if !ok {
		return repositories.NotFound("order.update_status")
	}
	if order.Status != update.Expected {
		return repositories.Stale("order.update_status")
	}

	order.Status = update.Status
	if update.PayStatus != nil {
		order.PayStatus = *update.PayStatus
	}
	if update.CheckoutTime != nil {
		t := *update.CheckoutTime
		order.CheckoutTime = &t
	}
	if update.DeliveryTime != nil {
		t := *update.DeliveryTime
		order.DeliveryTime = &t
	}
	if update.CancelTime != nil {
		t := *update.CancelTime
		order.CancelTime = &t
	}
	if update.CancelReason != nil {
		order.CancelReason = *update.CancelReason
	}
	if update.RejectionReason != nil {
		order.RejectionReason = *update.RejectionReason
	}
	repositories.StampOrder(&order, time.Now())

	r.store.orders[update.ID] = order
	return nil
}

// Search filters and pages orders, newest first.
func (r *OrderRepository) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	matched := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.Number != "" && !strings.Contains(order.Number, filter.Number) {
			continue
		}
		if filter.Phone != "" && !strings.Contains(order.Phone, filter.Phone) {
			continue
		}
		if filter.From != nil && order.OrderTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && order.OrderTime.After(*filter.To) {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OrderTime.Equal(matched[j].OrderTime) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].OrderTime.After(matched[j].OrderTime)
	})

	total := int64(len(matched))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 10
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return domain.Page[domain.Order]{Total: total}, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return domain.Page[domain.Order]{Total: total, Items: matched[start:end]}, nil
}

// ListByStatusBefore enumerates sweep candidates.
func (r *OrderRepository) ListByStatusBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time) ([]domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	candidates := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.Status == status && order.OrderTime.Before(cutoff) {
			candidates = append(candidates, order)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

// CountByStatus counts orders currently in the given status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	count := 0
	for _, order := range r.store.orders {
		if order.Status == status {
			count++
		}
	}
	return count, nil
}

func cloneLines(lines []domain.OrderLine) []domain.OrderLine {
	if lines == nil {
		return nil
	}
	cloned := make([]domain.OrderLine, len(lines))
	copy(cloned, lines)
	return cloned
}
