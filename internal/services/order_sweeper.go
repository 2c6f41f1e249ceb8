package services

import (
	"context"
	"errors"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// OrderSweeperDeps enumerates collaborators required to construct the sweeper.
type OrderSweeperDeps struct {
	Orders repositories.OrderRepository
	Engine OrderService

	// UnpaidInterval is the cadence of the unpaid-order pass; UnpaidWindow is
	// how long an order may sit in PENDING_PAYMENT before it is expired.
	UnpaidInterval time.Duration
	UnpaidWindow   time.Duration

	// StuckInterval is the cadence of the stuck-delivery pass; StuckWindow is
	// how long an order may sit in DELIVERY_IN_PROGRESS before it is
	// force-completed.
	StuckInterval time.Duration
	StuckWindow   time.Duration

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// OrderSweeper periodically expires abandoned unpaid orders and closes out
// deliveries left open. Each candidate goes through the lifecycle engine's
// conditional writes, so a sweep racing a user action loses cleanly.
type OrderSweeper struct {
	orders repositories.OrderRepository
	engine OrderService

	unpaidInterval time.Duration
	unpaidWindow   time.Duration
	stuckInterval  time.Duration
	stuckWindow    time.Duration

	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderSweeper wires dependencies into an OrderSweeper.
func NewOrderSweeper(deps OrderSweeperDeps) (*OrderSweeper, error) {
	if deps.Orders == nil {
		return nil, errors.New("order sweeper: order repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("order sweeper: order service is required")
	}

	unpaidInterval := deps.UnpaidInterval
	if unpaidInterval <= 0 {
		unpaidInterval = time.Minute
	}
	unpaidWindow := deps.UnpaidWindow
	if unpaidWindow <= 0 {
		unpaidWindow = 15 * time.Minute
	}
	stuckInterval := deps.StuckInterval
	if stuckInterval <= 0 {
		stuckInterval = 24 * time.Hour
	}
	stuckWindow := deps.StuckWindow
	if stuckWindow <= 0 {
		stuckWindow = 2 * time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OrderSweeper{
		orders:         deps.Orders,
		engine:         deps.Engine,
		unpaidInterval: unpaidInterval,
		unpaidWindow:   unpaidWindow,
		stuckInterval:  stuckInterval,
		stuckWindow:    stuckWindow,
		clock:          func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

// Run blocks, driving both passes on their own cadences until the context is
// cancelled.
func (s *OrderSweeper) Run(ctx context.Context) {
	unpaidTicker := time.NewTicker(s.unpaidInterval)
	defer unpaidTicker.Stop()
	stuckTicker := time.NewTicker(s.stuckInterval)
	defer stuckTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-unpaidTicker.C:
			s.SweepUnpaid(ctx)
		case <-stuckTicker.C:
			s.SweepStuckDelivery(ctx)
		}
	}
}

// SweepUnpaid cancels every order that has been awaiting payment longer than
// the unpaid window. One failing candidate never stops the pass.
func (s *OrderSweeper) SweepUnpaid(ctx context.Context) {
	cutoff := s.clock().Add(-s.unpaidWindow)
	candidates, err := s.orders.ListByStatusBefore(ctx, domain.OrderStatusPendingPayment, cutoff)
	if err != nil {
		s.logger(ctx, "sweeper.unpaid.list_failed", map[string]any{"error": err.Error()})
		return
	}

	for _, order := range candidates {
		err := s.engine.ExpireUnpaid(ctx, order.ID)
		switch {
		case err == nil:
			s.logger(ctx, "sweeper.unpaid.expired", map[string]any{
				"orderId": order.ID,
				"number":  order.Number,
			})
		case errors.Is(err, ErrStaleState), errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrOrderNotFound):
			// The order moved on between the listing and the write.
		default:
			s.logger(ctx, "sweeper.unpaid.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
}

// SweepStuckDelivery completes every order left in delivery longer than the
// stuck window.
func (s *OrderSweeper) SweepStuckDelivery(ctx context.Context) {
	cutoff := s.clock().Add(-s.stuckWindow)
	candidates, err := s.orders.ListByStatusBefore(ctx, domain.OrderStatusDeliveryInProgress, cutoff)
	if err != nil {
		s.logger(ctx, "sweeper.stuck.list_failed", map[string]any{"error": err.Error()})
		return
	}

	for _, order := range candidates {
		err := s.engine.RecoverStuckDelivery(ctx, order.ID)
		switch {
		case err == nil:
			s.logger(ctx, "sweeper.stuck.completed", map[string]any{
				"orderId": order.ID,
				"number":  order.Number,
			})
		case errors.Is(err, ErrStaleState), errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrOrderNotFound):
			// The order moved on between the listing and the write.
		default:
			s.logger(ctx, "sweeper.stuck.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
}
