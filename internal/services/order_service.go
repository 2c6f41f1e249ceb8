package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

var (
	// ErrValidation signals bad or missing input, rejected before any mutation.
	ErrValidation = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrIllegalTransition indicates the requested operation is not valid from
	// the order's current status.
	ErrIllegalTransition = errors.New("order: illegal transition")
	// ErrStaleState indicates a conditional write lost the race to a
	// concurrent transition; the caller may re-read and retry.
	ErrStaleState = errors.New("order: state changed concurrently")
	// ErrUpstream indicates an external collaborator failed before any order
	// mutation took place.
	ErrUpstream = errors.New("order: upstream collaborator failure")
	// ErrOutOfRange indicates the delivery address is outside the shop's range.
	ErrOutOfRange = errors.New("order: delivery address out of range")
)

// timeoutCancelReason is persisted when the sweeper expires an unpaid order.
const timeoutCancelReason = "timeout"

var userCancellable = []domain.OrderStatus{
	domain.OrderStatusPendingPayment,
	domain.OrderStatusToBeConfirmed,
}

// OrderServiceDeps bundles collaborators required to construct the engine.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Carts      repositories.CartRepository
	Addresses  AddressDirectory
	RangeCheck DeliveryRangeChecker
	UnitOfWork repositories.UnitOfWork
	Publishers []OrderEventPublisher

	// PaymentWindow is how long an order may stay unpaid before the sweeper is
	// allowed to expire it.
	PaymentWindow time.Duration

	Clock           func() time.Time
	NumberGenerator func(now time.Time) string
	Logger          func(ctx context.Context, event string, fields map[string]any)
	Metrics         TransitionRecorder
}

// TransitionRecorder counts transition attempts by operation and outcome.
type TransitionRecorder interface {
	RecordTransition(op, outcome string)
}

type noopTransitionRecorder struct{}

func (noopTransitionRecorder) RecordTransition(string, string) {}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	addresses  AddressDirectory
	rangeCheck DeliveryRangeChecker
	unitOfWork repositories.UnitOfWork
	publishers []OrderEventPublisher

	paymentWindow time.Duration

	clock      func() time.Time
	nextNumber func(time.Time) string
	logger     func(context.Context, string, map[string]any)
	metrics    TransitionRecorder

	numberSeq atomic.Int64
}

// NewOrderService wires dependencies into a concrete OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address directory is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopTransitionRecorder{}
	}
	window := deps.PaymentWindow
	if window <= 0 {
		window = 15 * time.Minute
	}

	s := &orderService{
		orders:        deps.Orders,
		carts:         deps.Carts,
		addresses:     deps.Addresses,
		rangeCheck:    deps.RangeCheck,
		unitOfWork:    unit,
		publishers:    deps.Publishers,
		paymentWindow: window,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
		metrics:       metrics,
	}
	if deps.NumberGenerator != nil {
		s.nextNumber = deps.NumberGenerator
	} else {
		s.nextNumber = s.defaultNumber
	}
	return s, nil
}

// defaultNumber derives the external order number from the submission time,
// with a per-process sequence suffix so rapid submits stay unique.
func (s *orderService) defaultNumber(now time.Time) string {
	seq := s.numberSeq.Add(1) % 1000
	return strconv.FormatInt(now.UnixMilli(), 10) + fmt.Sprintf("%03d", seq)
}

func (s *orderService) Submit(ctx context.Context, cmd SubmitOrderCommand) (OrderSubmission, error) {
	if cmd.UserID == 0 {
		return OrderSubmission{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if cmd.AddressID == 0 {
		return OrderSubmission{}, fmt.Errorf("%w: delivery address is required", ErrValidation)
	}

	// Fast-fail guard only; the snapshot that becomes order lines is drained
	// inside the unit of work below.
	items, err := s.carts.List(ctx, cmd.UserID)
	if err != nil {
		return OrderSubmission{}, s.mapRepositoryError(err)
	}
	if len(items) == 0 {
		return OrderSubmission{}, fmt.Errorf("%w: shopping cart is empty", ErrValidation)
	}

	addr, err := s.addresses.GetAddress(ctx, cmd.AddressID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return OrderSubmission{}, fmt.Errorf("%w: delivery address not found", ErrValidation)
		}
		return OrderSubmission{}, fmt.Errorf("%w: resolve address: %v", ErrUpstream, err)
	}

	if s.rangeCheck != nil {
		if err := s.rangeCheck.CheckRange(ctx, addr.Full); err != nil {
			if errors.Is(err, ErrOutOfRange) {
				return OrderSubmission{}, err
			}
			return OrderSubmission{}, fmt.Errorf("%w: delivery range check: %v", ErrUpstream, err)
		}
	}

	now := s.clock()
	var order domain.Order

	// Cart drain, order creation and line snapshot commit as one unit. Every
	// row the drain removes becomes an order line.
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		drained, err := s.carts.Drain(txCtx, cmd.UserID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(drained) == 0 {
			return fmt.Errorf("%w: shopping cart is empty", ErrValidation)
		}

		order = domain.Order{
			Number:    s.nextNumber(now),
			UserID:    cmd.UserID,
			Status:    domain.OrderStatusPendingPayment,
			PayStatus: domain.PayStatusUnpaid,
			Consignee: addr.Consignee,
			Phone:     addr.Phone,
			Address:   addr.Full,
			Remark:    cmd.Remark,
			OrderTime: now,
			Lines:     buildOrderLines(drained),
		}
		for _, line := range order.Lines {
			order.Amount += line.Total()
		}

		inserted, err := s.orders.Insert(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		order = inserted
		return nil
	})
	if err != nil {
		return OrderSubmission{}, err
	}

	s.metrics.RecordTransition("submit", "applied")
	s.logger(ctx, "order.submitted", map[string]any{
		"orderId": order.ID,
		"number":  order.Number,
		"userId":  order.UserID,
		"amount":  order.Amount,
	})

	return OrderSubmission{
		ID:        order.ID,
		Number:    order.Number,
		Amount:    order.Amount,
		OrderTime: order.OrderTime,
	}, nil
}

func (s *orderService) RequestPayment(ctx context.Context, userID int64, orderNumber string) (PaymentIntent, error) {
	order, err := s.findByNumber(ctx, orderNumber)
	if err != nil {
		return PaymentIntent{}, err
	}
	if order.UserID != userID {
		return PaymentIntent{}, ErrOrderNotFound
	}
	if order.PayStatus == domain.PayStatusPaid {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is already paid", ErrIllegalTransition, order.Number)
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is not awaiting payment", ErrIllegalTransition, order.Number)
	}

	return PaymentIntent{
		OrderNumber: order.Number,
		Amount:      order.Amount,
		NonceStr:    ulid.Make().String(),
		SignedAt:    s.clock(),
	}, nil
}

// ConfirmPayment is the payment gateway's success callback. It is idempotent:
// a replay against an order that already reached TO_BE_CONFIRMED/PAID is a
// no-op, not an error, and emits no second event.
func (s *orderService) ConfirmPayment(ctx context.Context, orderNumber string) error {
	order, err := s.findByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}

	if paymentApplied(order) {
		s.metrics.RecordTransition("confirm_payment", "replayed")
		return nil
	}
	if order.Status != domain.OrderStatusPendingPayment {
		s.metrics.RecordTransition("confirm_payment", "rejected")
		return fmt.Errorf("%w: cannot confirm payment from %s", ErrIllegalTransition, order.Status)
	}

	now := s.clock()
	paid := domain.PayStatusPaid
	err = s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		ID:           order.ID,
		Expected:     domain.OrderStatusPendingPayment,
		Status:       domain.OrderStatusToBeConfirmed,
		PayStatus:    &paid,
		CheckoutTime: &now,
	})
	if err != nil {
		if repositories.IsStale(err) {
			// Lost the race; tolerate a concurrent replay of the same callback.
			current, readErr := s.orders.FindByID(ctx, order.ID)
			if readErr == nil && paymentApplied(current) {
				s.metrics.RecordTransition("confirm_payment", "replayed")
				return nil
			}
		}
		s.metrics.RecordTransition("confirm_payment", "lost_race")
		return s.mapRepositoryError(err)
	}

	s.metrics.RecordTransition("confirm_payment", "applied")
	s.publishEvent(ctx, OrderEvent{
		Kind:           OrderEventNewOrder,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: domain.OrderStatusPendingPayment,
		CurrentStatus:  domain.OrderStatusToBeConfirmed,
		OccurredAt:     now,
	})
	return nil
}

func (s *orderService) Confirm(ctx context.Context, orderID int64) error {
	_, err := s.transition(ctx, "confirm", orderID,
		[]domain.OrderStatus{domain.OrderStatusToBeConfirmed},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			return repositories.OrderStatusUpdate{
				ID:       order.ID,
				Expected: order.Status,
				Status:   domain.OrderStatusConfirmed,
			}
		})
	return err
}

func (s *orderService) Reject(ctx context.Context, orderID int64, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	_, err := s.transition(ctx, "reject", orderID,
		[]domain.OrderStatus{domain.OrderStatusToBeConfirmed},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			update := repositories.OrderStatusUpdate{
				ID:              order.ID,
				Expected:        order.Status,
				Status:          domain.OrderStatusCancelled,
				CancelTime:      &now,
				RejectionReason: &reason,
			}
			if order.PayStatus == domain.PayStatusPaid {
				refunded := domain.PayStatusRefunded
				update.PayStatus = &refunded
			}
			return update
		})
	return err
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) error {
	allowed := userCancellable
	if !cmd.ByUser {
		// Admin cancellation reaches any state that is not yet terminal.
		allowed = []domain.OrderStatus{
			domain.OrderStatusPendingPayment,
			domain.OrderStatusToBeConfirmed,
			domain.OrderStatusConfirmed,
			domain.OrderStatusDeliveryInProgress,
		}
	}
	reason := cmd.Reason
	_, err := s.transition(ctx, "cancel", cmd.OrderID, allowed,
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			update := repositories.OrderStatusUpdate{
				ID:           order.ID,
				Expected:     order.Status,
				Status:       domain.OrderStatusCancelled,
				CancelTime:   &now,
				CancelReason: &reason,
			}
			if order.PayStatus == domain.PayStatusPaid {
				refunded := domain.PayStatusRefunded
				update.PayStatus = &refunded
			}
			return update
		})
	return err
}

func (s *orderService) Deliver(ctx context.Context, orderID int64) error {
	_, err := s.transition(ctx, "deliver", orderID,
		[]domain.OrderStatus{domain.OrderStatusConfirmed},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			return repositories.OrderStatusUpdate{
				ID:       order.ID,
				Expected: order.Status,
				Status:   domain.OrderStatusDeliveryInProgress,
			}
		})
	return err
}

func (s *orderService) Complete(ctx context.Context, orderID int64) error {
	_, err := s.transition(ctx, "complete", orderID,
		[]domain.OrderStatus{domain.OrderStatusDeliveryInProgress},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			return repositories.OrderStatusUpdate{
				ID:           order.ID,
				Expected:     order.Status,
				Status:       domain.OrderStatusCompleted,
				DeliveryTime: &now,
			}
		})
	return err
}

// Remind nudges the admin clients about an in-flight order. It applies no
// state change.
func (s *orderService) Remind(ctx context.Context, orderID int64) error {
	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is already %s", ErrIllegalTransition, order.Number, order.Status)
	}

	s.publishEvent(ctx, OrderEvent{
		Kind:           OrderEventReminder,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: order.Status,
		CurrentStatus:  order.Status,
		OccurredAt:     s.clock(),
	})
	return nil
}

// ExpireUnpaid cancels an order that stayed unpaid beyond the payment window.
func (s *orderService) ExpireUnpaid(ctx context.Context, orderID int64) error {
	reason := timeoutCancelReason
	_, err := s.transition(ctx, "expire_unpaid", orderID,
		[]domain.OrderStatus{domain.OrderStatusPendingPayment},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			return repositories.OrderStatusUpdate{
				ID:           order.ID,
				Expected:     order.Status,
				Status:       domain.OrderStatusCancelled,
				CancelTime:   &now,
				CancelReason: &reason,
			}
		},
		func(order domain.Order, now time.Time) error {
			if now.Sub(order.OrderTime) < s.paymentWindow {
				return fmt.Errorf("%w: order %s is still within the payment window", ErrIllegalTransition, order.Number)
			}
			return nil
		})
	return err
}

// RecoverStuckDelivery completes an order that was left in delivery past the
// staleness threshold, typically by an admin forgetting to close it out.
func (s *orderService) RecoverStuckDelivery(ctx context.Context, orderID int64) error {
	_, err := s.transition(ctx, "recover_stuck_delivery", orderID,
		[]domain.OrderStatus{domain.OrderStatusDeliveryInProgress},
		func(order domain.Order, now time.Time) repositories.OrderStatusUpdate {
			return repositories.OrderStatusUpdate{
				ID:           order.ID,
				Expected:     order.Status,
				Status:       domain.OrderStatusCompleted,
				DeliveryTime: &now,
			}
		})
	return err
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	lines, err := s.orders.ListLines(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	order.Lines = lines
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID int64, status *domain.OrderStatus, page, pageSize int) (domain.Page[domain.Order], error) {
	if userID == 0 {
		return domain.Page[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	result, err := s.orders.Search(ctx, repositories.OrderSearchFilter{
		UserID:   &userID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return domain.Page[domain.Order]{}, s.mapRepositoryError(err)
	}
	if err := s.attachLines(ctx, result.Items); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return result, nil
}

func (s *orderService) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error) {
	result, err := s.orders.Search(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, s.mapRepositoryError(err)
	}
	if err := s.attachLines(ctx, result.Items); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return result, nil
}

func (s *orderService) Statistics(ctx context.Context) (domain.OrderStatistics, error) {
	var stats domain.OrderStatistics
	var err error
	if stats.ToBeConfirmed, err = s.orders.CountByStatus(ctx, domain.OrderStatusToBeConfirmed); err != nil {
		return domain.OrderStatistics{}, s.mapRepositoryError(err)
	}
	if stats.Confirmed, err = s.orders.CountByStatus(ctx, domain.OrderStatusConfirmed); err != nil {
		return domain.OrderStatistics{}, s.mapRepositoryError(err)
	}
	if stats.DeliveryInProgress, err = s.orders.CountByStatus(ctx, domain.OrderStatusDeliveryInProgress); err != nil {
		return domain.OrderStatistics{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

// Repeat copies a past order's lines back into the user's cart.
func (s *orderService) Repeat(ctx context.Context, userID, orderID int64) error {
	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrOrderNotFound
	}
	lines, err := s.orders.ListLines(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	items := make([]domain.CartItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.CartItem{
			UserID:    userID,
			DishID:    line.DishID,
			SetmealID: line.SetmealID,
			Flavor:    line.Flavor,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			Amount:    line.Amount,
		})
	}
	if err := s.carts.InsertBatch(ctx, items); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// transition runs the shared read, guard, conditional-write sequence and emits
// a status-changed event when the write commits. Extra guards beyond the
// allowed-status check may be supplied as trailing functions.
func (s *orderService) transition(
	ctx context.Context,
	op string,
	orderID int64,
	allowed []domain.OrderStatus,
	build func(order domain.Order, now time.Time) repositories.OrderStatusUpdate,
	guards ...func(order domain.Order, now time.Time) error,
) (domain.Order, error) {
	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	if !slices.Contains(allowed, order.Status) {
		s.metrics.RecordTransition(op, "rejected")
		return domain.Order{}, fmt.Errorf("%w: %s is not allowed from %s", ErrIllegalTransition, op, order.Status)
	}
	for _, guard := range guards {
		if err := guard(order, now); err != nil {
			s.metrics.RecordTransition(op, "rejected")
			return domain.Order{}, err
		}
	}

	update := build(order, now)
	if err := s.orders.UpdateStatus(ctx, update); err != nil {
		s.metrics.RecordTransition(op, "lost_race")
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.metrics.RecordTransition(op, "applied")
	s.logger(ctx, "order.transition", map[string]any{
		"op":      op,
		"orderId": order.ID,
		"number":  order.Number,
		"from":    order.Status.String(),
		"to":      update.Status.String(),
	})
	s.publishEvent(ctx, OrderEvent{
		Kind:           OrderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: order.Status,
		CurrentStatus:  update.Status,
		OccurredAt:     now,
	})

	order.Status = update.Status
	return order, nil
}

func (s *orderService) findByID(ctx context.Context, orderID int64) (domain.Order, error) {
	if orderID == 0 {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) findByNumber(ctx context.Context, number string) (domain.Order, error) {
	if number == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrValidation)
	}
	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) attachLines(ctx context.Context, orders []domain.Order) error {
	for i := range orders {
		lines, err := s.orders.ListLines(ctx, orders[i].ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		orders[i].Lines = lines
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case repositories.IsStale(err):
		return fmt.Errorf("%w: %v", ErrStaleState, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrStaleState, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("order: repository unavailable: %w", err)
	}
	return err
}

// publishEvent fans the event out best-effort; a failing publisher is logged
// and never fails the transition that produced the event.
func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	for _, publisher := range s.publishers {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "order.event.publish_failed", map[string]any{
				"kind":    string(event.Kind),
				"orderId": event.OrderID,
				"error":   err.Error(),
			})
		}
	}
}

func paymentApplied(order domain.Order) bool {
	return order.Status == domain.OrderStatusToBeConfirmed && order.PayStatus == domain.PayStatusPaid
}

func buildOrderLines(items []domain.CartItem) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.OrderLine{
			DishID:    item.DishID,
			SetmealID: item.SetmealID,
			Name:      item.Name,
			Flavor:    item.Flavor,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Amount:    item.Amount,
		})
	}
	return lines
}
