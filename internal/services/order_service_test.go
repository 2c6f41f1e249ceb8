package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

var fixedNow = time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)

type stubOrderRepository struct {
	insert             func(ctx context.Context, order domain.Order) (domain.Order, error)
	findByID           func(ctx context.Context, orderID int64) (domain.Order, error)
	findByNumber       func(ctx context.Context, number string) (domain.Order, error)
	listLines          func(ctx context.Context, orderID int64) ([]domain.OrderLine, error)
	updateStatus       func(ctx context.Context, update repositories.OrderStatusUpdate) error
	search             func(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error)
	listByStatusBefore func(ctx context.Context, status domain.OrderStatus, cutoff time.Time) ([]domain.Order, error)
	countByStatus      func(ctx context.Context, status domain.OrderStatus) (int, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insert == nil {
		return domain.Order{}, errors.New("unexpected Insert call")
	}
	return s.insert(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	if s.findByID == nil {
		return domain.Order{}, errors.New("unexpected FindByID call")
	}
	return s.findByID(ctx, orderID)
}

func (s *stubOrderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	if s.findByNumber == nil {
		return domain.Order{}, errors.New("unexpected FindByNumber call")
	}
	return s.findByNumber(ctx, number)
}

func (s *stubOrderRepository) ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	if s.listLines == nil {
		return nil, nil
	}
	return s.listLines(ctx, orderID)
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) error {
	if s.updateStatus == nil {
		return errors.New("unexpected UpdateStatus call")
	}
	return s.updateStatus(ctx, update)
}

func (s *stubOrderRepository) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error) {
	if s.search == nil {
		return domain.Page[domain.Order]{}, errors.New("unexpected Search call")
	}
	return s.search(ctx, filter)
}

func (s *stubOrderRepository) ListByStatusBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time) ([]domain.Order, error) {
	if s.listByStatusBefore == nil {
		return nil, errors.New("unexpected ListByStatusBefore call")
	}
	return s.listByStatusBefore(ctx, status, cutoff)
}

func (s *stubOrderRepository) CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	if s.countByStatus == nil {
		return 0, errors.New("unexpected CountByStatus call")
	}
	return s.countByStatus(ctx, status)
}

type stubCartRepository struct {
	merge       func(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	decrement   func(ctx context.Context, userID int64, key string) (domain.CartItem, error)
	list        func(ctx context.Context, userID int64) ([]domain.CartItem, error)
	drain       func(ctx context.Context, userID int64) ([]domain.CartItem, error)
	clear       func(ctx context.Context, userID int64) error
	insertBatch func(ctx context.Context, items []domain.CartItem) error
}

func (s *stubCartRepository) Merge(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if s.merge == nil {
		return domain.CartItem{}, errors.New("unexpected Merge call")
	}
	return s.merge(ctx, item)
}

func (s *stubCartRepository) Decrement(ctx context.Context, userID int64, key string) (domain.CartItem, error) {
	if s.decrement == nil {
		return domain.CartItem{}, errors.New("unexpected Decrement call")
	}
	return s.decrement(ctx, userID, key)
}

func (s *stubCartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if s.list == nil {
		return nil, errors.New("unexpected List call")
	}
	return s.list(ctx, userID)
}

func (s *stubCartRepository) Drain(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if s.drain == nil {
		return nil, errors.New("unexpected Drain call")
	}
	return s.drain(ctx, userID)
}

func (s *stubCartRepository) Clear(ctx context.Context, userID int64) error {
	if s.clear == nil {
		return errors.New("unexpected Clear call")
	}
	return s.clear(ctx, userID)
}

func (s *stubCartRepository) InsertBatch(ctx context.Context, items []domain.CartItem) error {
	if s.insertBatch == nil {
		return errors.New("unexpected InsertBatch call")
	}
	return s.insertBatch(ctx, items)
}

type stubAddressDirectory struct {
	getAddress func(ctx context.Context, addressID int64) (domain.Address, error)
}

func (s *stubAddressDirectory) GetAddress(ctx context.Context, addressID int64) (domain.Address, error) {
	return s.getAddress(ctx, addressID)
}

type stubRangeChecker struct {
	err error
}

func (s *stubRangeChecker) CheckRange(ctx context.Context, address string) error {
	return s.err
}

type capturingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturingPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func intPtr(v int64) *int64 { return &v }

func cartFixture(userID int64) []domain.CartItem {
	return []domain.CartItem{
		{UserID: userID, DishID: intPtr(1), Name: "Kung Pao Chicken", Flavor: "spicy", Quantity: 2, Amount: 2800},
		{UserID: userID, SetmealID: intPtr(10), Name: "Lunch Combo A", Quantity: 1, Amount: 4500},
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return fixedNow }
	}
	if deps.NumberGenerator == nil {
		deps.NumberGenerator = func(time.Time) string { return "20260314001" }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestSubmitCreatesOrderAndDrainsCart(t *testing.T) {
	var inserted domain.Order
	drained := false

	orders := &stubOrderRepository{
		insert: func(_ context.Context, order domain.Order) (domain.Order, error) {
			inserted = order
			order.ID = 42
			return order, nil
		},
	}
	carts := &stubCartRepository{
		list: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			return cartFixture(userID), nil
		},
		drain: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			drained = true
			return cartFixture(userID), nil
		},
	}
	addresses := &stubAddressDirectory{
		getAddress: func(context.Context, int64) (domain.Address, error) {
			return domain.Address{ID: 7, Consignee: "Ada", Phone: "13800000000", Full: "1 Demo Street"}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: carts, Addresses: addresses})

	submission, err := svc.Submit(context.Background(), SubmitOrderCommand{UserID: 9, AddressID: 7, Remark: "no onions"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if submission.ID != 42 {
		t.Fatalf("submission ID = %d, want 42", submission.ID)
	}
	if submission.Number != "20260314001" {
		t.Fatalf("submission number = %q", submission.Number)
	}
	wantAmount := int64(2*2800 + 4500)
	if submission.Amount != wantAmount {
		t.Fatalf("submission amount = %d, want %d", submission.Amount, wantAmount)
	}
	if !drained {
		t.Fatal("expected the cart to be drained")
	}
	if inserted.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("inserted status = %s, want PENDING_PAYMENT", inserted.Status)
	}
	if inserted.PayStatus != domain.PayStatusUnpaid {
		t.Fatalf("inserted pay status = %s, want UNPAID", inserted.PayStatus)
	}
	if len(inserted.Lines) != 2 {
		t.Fatalf("inserted line count = %d, want 2", len(inserted.Lines))
	}
	if inserted.Consignee != "Ada" || inserted.Address != "1 Demo Street" {
		t.Fatalf("address snapshot not copied: %+v", inserted)
	}
}

func TestSubmitOrdersItemsMergedAfterGuardRead(t *testing.T) {
	var inserted domain.Order

	orders := &stubOrderRepository{
		insert: func(_ context.Context, order domain.Order) (domain.Order, error) {
			inserted = order
			order.ID = 43
			return order, nil
		},
	}
	carts := &stubCartRepository{
		list: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			return cartFixture(userID), nil
		},
		// The drain sees one more row than the guard read did, as if another
		// request merged an item in between.
		drain: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			return append(cartFixture(userID),
				domain.CartItem{UserID: userID, DishID: intPtr(2), Name: "Mapo Tofu", Quantity: 1, Amount: 2200}), nil
		},
	}
	addresses := &stubAddressDirectory{
		getAddress: func(context.Context, int64) (domain.Address, error) {
			return domain.Address{ID: 7, Consignee: "Ada", Phone: "13800000000", Full: "1 Demo Street"}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: carts, Addresses: addresses})

	submission, err := svc.Submit(context.Background(), SubmitOrderCommand{UserID: 9, AddressID: 7})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if len(inserted.Lines) != 3 {
		t.Fatalf("inserted line count = %d, want 3", len(inserted.Lines))
	}
	wantAmount := int64(2*2800 + 4500 + 2200)
	if submission.Amount != wantAmount {
		t.Fatalf("submission amount = %d, want %d", submission.Amount, wantAmount)
	}
}

func TestSubmitRejectsEmptyCart(t *testing.T) {
	carts := &stubCartRepository{
		list: func(context.Context, int64) ([]domain.CartItem, error) { return nil, nil },
	}
	addresses := &stubAddressDirectory{
		getAddress: func(context.Context, int64) (domain.Address, error) {
			t.Fatal("address lookup should not run for an empty cart")
			return domain.Address{}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: carts, Addresses: addresses})

	_, err := svc.Submit(context.Background(), SubmitOrderCommand{UserID: 9, AddressID: 7})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitRejectsUnknownAddress(t *testing.T) {
	carts := &stubCartRepository{
		list: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			return cartFixture(userID), nil
		},
	}
	addresses := &stubAddressDirectory{
		getAddress: func(context.Context, int64) (domain.Address, error) {
			return domain.Address{}, repositories.NotFound("directory.get_address")
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: carts, Addresses: addresses})

	_, err := svc.Submit(context.Background(), SubmitOrderCommand{UserID: 9, AddressID: 404})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitRejectsOutOfRangeAddress(t *testing.T) {
	carts := &stubCartRepository{
		list: func(_ context.Context, userID int64) ([]domain.CartItem, error) {
			return cartFixture(userID), nil
		},
	}
	addresses := &stubAddressDirectory{
		getAddress: func(context.Context, int64) (domain.Address, error) {
			return domain.Address{ID: 7, Full: "far away"}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     &stubOrderRepository{},
		Carts:      carts,
		Addresses:  addresses,
		RangeCheck: &stubRangeChecker{err: ErrOutOfRange},
	})

	_, err := svc.Submit(context.Background(), SubmitOrderCommand{UserID: 9, AddressID: 7})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestConfirmPaymentAppliesConditionalWrite(t *testing.T) {
	pending := domain.Order{ID: 42, Number: "20260314001", UserID: 9, Status: domain.OrderStatusPendingPayment, PayStatus: domain.PayStatusUnpaid}
	var applied repositories.OrderStatusUpdate

	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return pending, nil },
		updateStatus: func(_ context.Context, update repositories.OrderStatusUpdate) error {
			applied = update
			return nil
		},
	}
	publisher := &capturingPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     orders,
		Carts:      &stubCartRepository{},
		Addresses:  &stubAddressDirectory{},
		Publishers: []OrderEventPublisher{publisher},
	})

	if err := svc.ConfirmPayment(context.Background(), "20260314001"); err != nil {
		t.Fatalf("ConfirmPayment returned error: %v", err)
	}

	if applied.Expected != domain.OrderStatusPendingPayment || applied.Status != domain.OrderStatusToBeConfirmed {
		t.Fatalf("conditional write %+v, want PENDING_PAYMENT -> TO_BE_CONFIRMED", applied)
	}
	if applied.PayStatus == nil || *applied.PayStatus != domain.PayStatusPaid {
		t.Fatalf("pay status not set to PAID: %+v", applied.PayStatus)
	}
	if applied.CheckoutTime == nil || !applied.CheckoutTime.Equal(fixedNow) {
		t.Fatalf("checkout time = %v, want %v", applied.CheckoutTime, fixedNow)
	}
	if len(publisher.events) != 1 || publisher.events[0].Kind != OrderEventNewOrder {
		t.Fatalf("events = %+v, want one new_order event", publisher.events)
	}
}

func TestConfirmPaymentReplayIsNoOp(t *testing.T) {
	paid := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusToBeConfirmed, PayStatus: domain.PayStatusPaid}
	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return paid, nil },
	}
	publisher := &capturingPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     orders,
		Carts:      &stubCartRepository{},
		Addresses:  &stubAddressDirectory{},
		Publishers: []OrderEventPublisher{publisher},
	})

	if err := svc.ConfirmPayment(context.Background(), "20260314001"); err != nil {
		t.Fatalf("replayed callback returned error: %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("replay published %d events, want 0", len(publisher.events))
	}
}

func TestConfirmPaymentToleratesConcurrentReplay(t *testing.T) {
	pending := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusPendingPayment, PayStatus: domain.PayStatusUnpaid}
	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return pending, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error {
			return repositories.Stale("orders.update_status")
		},
		findByID: func(context.Context, int64) (domain.Order, error) {
			return domain.Order{ID: 42, Status: domain.OrderStatusToBeConfirmed, PayStatus: domain.PayStatusPaid}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	if err := svc.ConfirmPayment(context.Background(), "20260314001"); err != nil {
		t.Fatalf("lost race against an identical callback should succeed, got %v", err)
	}
}

func TestConfirmPaymentRejectsTerminalOrder(t *testing.T) {
	cancelled := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusCancelled, PayStatus: domain.PayStatusUnpaid}
	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return cancelled, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.ConfirmPayment(context.Background(), "20260314001")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestCancelByUserRejectsConfirmedOrder(t *testing.T) {
	confirmed := domain.Order{ID: 42, Status: domain.OrderStatusConfirmed, PayStatus: domain.PayStatusPaid}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return confirmed, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: 42, Reason: "changed my mind", ByUser: true})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestCancelRefundsPaidOrder(t *testing.T) {
	paid := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusToBeConfirmed, PayStatus: domain.PayStatusPaid}
	var applied repositories.OrderStatusUpdate

	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return paid, nil },
		updateStatus: func(_ context.Context, update repositories.OrderStatusUpdate) error {
			applied = update
			return nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	if err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: 42, Reason: "changed my mind", ByUser: true}); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	if applied.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", applied.Status)
	}
	if applied.PayStatus == nil || *applied.PayStatus != domain.PayStatusRefunded {
		t.Fatalf("pay status = %+v, want REFUNDED", applied.PayStatus)
	}
	if applied.CancelReason == nil || *applied.CancelReason != "changed my mind" {
		t.Fatalf("cancel reason = %+v", applied.CancelReason)
	}
}

func TestAdminCancelReachesDeliveryInProgress(t *testing.T) {
	delivering := domain.Order{ID: 42, Status: domain.OrderStatusDeliveryInProgress, PayStatus: domain.PayStatusPaid}
	orders := &stubOrderRepository{
		findByID:     func(context.Context, int64) (domain.Order, error) { return delivering, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error { return nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	if err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: 42, Reason: "rider unavailable"}); err != nil {
		t.Fatalf("admin cancel returned error: %v", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.Reject(context.Background(), 42, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExpireUnpaidHonoursPaymentWindow(t *testing.T) {
	fresh := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusPendingPayment, OrderTime: fixedNow.Add(-5 * time.Minute)}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return fresh, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error {
			t.Fatal("order inside the payment window must not be expired")
			return nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        orders,
		Carts:         &stubCartRepository{},
		Addresses:     &stubAddressDirectory{},
		PaymentWindow: 15 * time.Minute,
	})

	err := svc.ExpireUnpaid(context.Background(), 42)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestExpireUnpaidCancelsOverdueOrder(t *testing.T) {
	overdue := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusPendingPayment, OrderTime: fixedNow.Add(-30 * time.Minute)}
	var applied repositories.OrderStatusUpdate

	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return overdue, nil },
		updateStatus: func(_ context.Context, update repositories.OrderStatusUpdate) error {
			applied = update
			return nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        orders,
		Carts:         &stubCartRepository{},
		Addresses:     &stubAddressDirectory{},
		PaymentWindow: 15 * time.Minute,
	})

	if err := svc.ExpireUnpaid(context.Background(), 42); err != nil {
		t.Fatalf("ExpireUnpaid returned error: %v", err)
	}
	if applied.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", applied.Status)
	}
	if applied.CancelReason == nil || *applied.CancelReason != "timeout" {
		t.Fatalf("cancel reason = %+v, want timeout", applied.CancelReason)
	}
}

func TestTransitionSurfacesLostRaceAsStale(t *testing.T) {
	pending := domain.Order{ID: 42, Status: domain.OrderStatusToBeConfirmed}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return pending, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error {
			return repositories.Stale("orders.update_status")
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.Confirm(context.Background(), 42)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestTransitionPublishesStatusChange(t *testing.T) {
	confirmed := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusConfirmed}
	orders := &stubOrderRepository{
		findByID:     func(context.Context, int64) (domain.Order, error) { return confirmed, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error { return nil },
	}
	publisher := &capturingPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     orders,
		Carts:      &stubCartRepository{},
		Addresses:  &stubAddressDirectory{},
		Publishers: []OrderEventPublisher{publisher},
	})

	if err := svc.Deliver(context.Background(), 42); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("event count = %d, want 1", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Kind != OrderEventStatusChanged {
		t.Fatalf("event kind = %s, want status_changed", event.Kind)
	}
	if event.PreviousStatus != domain.OrderStatusConfirmed || event.CurrentStatus != domain.OrderStatusDeliveryInProgress {
		t.Fatalf("event statuses = %s -> %s", event.PreviousStatus, event.CurrentStatus)
	}
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	confirmed := domain.Order{ID: 42, Status: domain.OrderStatusToBeConfirmed}
	orders := &stubOrderRepository{
		findByID:     func(context.Context, int64) (domain.Order, error) { return confirmed, nil },
		updateStatus: func(context.Context, repositories.OrderStatusUpdate) error { return nil },
	}
	publisher := &capturingPublisher{err: errors.New("broker unavailable")}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     orders,
		Carts:      &stubCartRepository{},
		Addresses:  &stubAddressDirectory{},
		Publishers: []OrderEventPublisher{publisher},
	})

	if err := svc.Confirm(context.Background(), 42); err != nil {
		t.Fatalf("Confirm returned error despite best-effort publish: %v", err)
	}
}

func TestRemindPublishesWithoutStateChange(t *testing.T) {
	confirmed := domain.Order{ID: 42, Number: "20260314001", Status: domain.OrderStatusConfirmed}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return confirmed, nil },
	}
	publisher := &capturingPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:     orders,
		Carts:      &stubCartRepository{},
		Addresses:  &stubAddressDirectory{},
		Publishers: []OrderEventPublisher{publisher},
	})

	if err := svc.Remind(context.Background(), 42); err != nil {
		t.Fatalf("Remind returned error: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].Kind != OrderEventReminder {
		t.Fatalf("events = %+v, want one reminder", publisher.events)
	}
}

func TestRemindRejectsTerminalOrder(t *testing.T) {
	completed := domain.Order{ID: 42, Status: domain.OrderStatusCompleted}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return completed, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.Remind(context.Background(), 42)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestRequestPaymentHidesForeignOrders(t *testing.T) {
	order := domain.Order{ID: 42, Number: "20260314001", UserID: 9, Status: domain.OrderStatusPendingPayment}
	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return order, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	_, err := svc.RequestPayment(context.Background(), 1000, "20260314001")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestRequestPaymentReturnsIntent(t *testing.T) {
	order := domain.Order{ID: 42, Number: "20260314001", UserID: 9, Amount: 10100, Status: domain.OrderStatusPendingPayment}
	orders := &stubOrderRepository{
		findByNumber: func(context.Context, string) (domain.Order, error) { return order, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	intent, err := svc.RequestPayment(context.Background(), 9, "20260314001")
	if err != nil {
		t.Fatalf("RequestPayment returned error: %v", err)
	}
	if intent.OrderNumber != "20260314001" || intent.Amount != 10100 {
		t.Fatalf("intent = %+v", intent)
	}
	if intent.NonceStr == "" {
		t.Fatal("intent nonce is empty")
	}
}

func TestRepeatCopiesLinesIntoCart(t *testing.T) {
	order := domain.Order{ID: 42, UserID: 9, Status: domain.OrderStatusCompleted}
	lines := []domain.OrderLine{
		{OrderID: 42, DishID: intPtr(1), Name: "Kung Pao Chicken", Flavor: "spicy", Quantity: 2, Amount: 2800},
	}
	var batch []domain.CartItem

	orders := &stubOrderRepository{
		findByID:  func(context.Context, int64) (domain.Order, error) { return order, nil },
		listLines: func(context.Context, int64) ([]domain.OrderLine, error) { return lines, nil },
	}
	carts := &stubCartRepository{
		insertBatch: func(_ context.Context, items []domain.CartItem) error {
			batch = items
			return nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: carts, Addresses: &stubAddressDirectory{}})

	if err := svc.Repeat(context.Background(), 9, 42); err != nil {
		t.Fatalf("Repeat returned error: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch size = %d, want 1", len(batch))
	}
	if batch[0].UserID != 9 || batch[0].Name != "Kung Pao Chicken" || batch[0].Quantity != 2 {
		t.Fatalf("copied item = %+v", batch[0])
	}
}

func TestRepeatHidesForeignOrders(t *testing.T) {
	order := domain.Order{ID: 42, UserID: 9}
	orders := &stubOrderRepository{
		findByID: func(context.Context, int64) (domain.Order, error) { return order, nil },
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	err := svc.Repeat(context.Background(), 1000, 42)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestStatisticsCountsInFlightStatuses(t *testing.T) {
	orders := &stubOrderRepository{
		countByStatus: func(_ context.Context, status domain.OrderStatus) (int, error) {
			switch status {
			case domain.OrderStatusToBeConfirmed:
				return 3, nil
			case domain.OrderStatusConfirmed:
				return 2, nil
			case domain.OrderStatusDeliveryInProgress:
				return 1, nil
			}
			return 0, errors.New("unexpected status")
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}, Addresses: &stubAddressDirectory{}})

	stats, err := svc.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.ToBeConfirmed != 3 || stats.Confirmed != 2 || stats.DeliveryInProgress != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
