package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/platform/requestctx"
	"github.com/plateful/api/internal/repositories"
	"github.com/plateful/api/internal/services"
)

// stubOrderService implements services.OrderService with overridable hooks.
type stubOrderService struct {
	submit         func(ctx context.Context, cmd services.SubmitOrderCommand) (services.OrderSubmission, error)
	requestPayment func(ctx context.Context, userID int64, orderNumber string) (services.PaymentIntent, error)
	confirmPayment func(ctx context.Context, orderNumber string) error
	confirm        func(ctx context.Context, orderID int64) error
	reject         func(ctx context.Context, orderID int64, reason string) error
	cancel         func(ctx context.Context, cmd services.CancelOrderCommand) error
	deliver        func(ctx context.Context, orderID int64) error
	complete       func(ctx context.Context, orderID int64) error
	remind         func(ctx context.Context, orderID int64) error
	getOrder       func(ctx context.Context, orderID int64) (domain.Order, error)
	listUserOrders func(ctx context.Context, userID int64, status *domain.OrderStatus, page, pageSize int) (domain.Page[domain.Order], error)
	search         func(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error)
	statistics     func(ctx context.Context) (domain.OrderStatistics, error)
	repeat         func(ctx context.Context, userID, orderID int64) error
}

var errUnexpectedCall = errors.New("unexpected service call")

func (s *stubOrderService) Submit(ctx context.Context, cmd services.SubmitOrderCommand) (services.OrderSubmission, error) {
	if s.submit == nil {
		return services.OrderSubmission{}, errUnexpectedCall
	}
	return s.submit(ctx, cmd)
}

func (s *stubOrderService) RequestPayment(ctx context.Context, userID int64, orderNumber string) (services.PaymentIntent, error) {
	if s.requestPayment == nil {
		return services.PaymentIntent{}, errUnexpectedCall
	}
	return s.requestPayment(ctx, userID, orderNumber)
}

func (s *stubOrderService) ConfirmPayment(ctx context.Context, orderNumber string) error {
	if s.confirmPayment == nil {
		return errUnexpectedCall
	}
	return s.confirmPayment(ctx, orderNumber)
}

func (s *stubOrderService) Confirm(ctx context.Context, orderID int64) error {
	if s.confirm == nil {
		return errUnexpectedCall
	}
	return s.confirm(ctx, orderID)
}

func (s *stubOrderService) Reject(ctx context.Context, orderID int64, reason string) error {
	if s.reject == nil {
		return errUnexpectedCall
	}
	return s.reject(ctx, orderID, reason)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) error {
	if s.cancel == nil {
		return errUnexpectedCall
	}
	return s.cancel(ctx, cmd)
}

func (s *stubOrderService) Deliver(ctx context.Context, orderID int64) error {
	if s.deliver == nil {
		return errUnexpectedCall
	}
	return s.deliver(ctx, orderID)
}

func (s *stubOrderService) Complete(ctx context.Context, orderID int64) error {
	if s.complete == nil {
		return errUnexpectedCall
	}
	return s.complete(ctx, orderID)
}

func (s *stubOrderService) Remind(ctx context.Context, orderID int64) error {
	if s.remind == nil {
		return errUnexpectedCall
	}
	return s.remind(ctx, orderID)
}

func (s *stubOrderService) ExpireUnpaid(context.Context, int64) error { return errUnexpectedCall }

func (s *stubOrderService) RecoverStuckDelivery(context.Context, int64) error {
	return errUnexpectedCall
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	if s.getOrder == nil {
		return domain.Order{}, errUnexpectedCall
	}
	return s.getOrder(ctx, orderID)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID int64, status *domain.OrderStatus, page, pageSize int) (domain.Page[domain.Order], error) {
	if s.listUserOrders == nil {
		return domain.Page[domain.Order]{}, errUnexpectedCall
	}
	return s.listUserOrders(ctx, userID, status, page, pageSize)
}

func (s *stubOrderService) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.Page[domain.Order], error) {
	if s.search == nil {
		return domain.Page[domain.Order]{}, errUnexpectedCall
	}
	return s.search(ctx, filter)
}

func (s *stubOrderService) Statistics(ctx context.Context) (domain.OrderStatistics, error) {
	if s.statistics == nil {
		return domain.OrderStatistics{}, errUnexpectedCall
	}
	return s.statistics(ctx)
}

func (s *stubOrderService) Repeat(ctx context.Context, userID, orderID int64) error {
	if s.repeat == nil {
		return errUnexpectedCall
	}
	return s.repeat(ctx, userID, orderID)
}

// stubCartService implements services.CartService with overridable hooks.
type stubCartService struct {
	add       func(ctx context.Context, cmd services.AddItemCommand) (domain.CartItem, error)
	decrement func(ctx context.Context, cmd services.AddItemCommand) (domain.CartItem, error)
	list      func(ctx context.Context, userID int64) ([]domain.CartItem, error)
	clear     func(ctx context.Context, userID int64) error
}

func (s *stubCartService) Add(ctx context.Context, cmd services.AddItemCommand) (domain.CartItem, error) {
	if s.add == nil {
		return domain.CartItem{}, errUnexpectedCall
	}
	return s.add(ctx, cmd)
}

func (s *stubCartService) Decrement(ctx context.Context, cmd services.AddItemCommand) (domain.CartItem, error) {
	if s.decrement == nil {
		return domain.CartItem{}, errUnexpectedCall
	}
	return s.decrement(ctx, cmd)
}

func (s *stubCartService) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if s.list == nil {
		return nil, errUnexpectedCall
	}
	return s.list(ctx, userID)
}

func (s *stubCartService) Clear(ctx context.Context, userID int64) error {
	if s.clear == nil {
		return errUnexpectedCall
	}
	return s.clear(ctx, userID)
}

// identityMiddleware injects a fixed identity, standing in for the auth layer.
func identityMiddleware(identity requestctx.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithIdentity(r.Context(), identity)))
		})
	}
}

func mountRoutes(identity *requestctx.Identity, register func(chi.Router)) http.Handler {
	router := chi.NewRouter()
	if identity != nil {
		router.Use(identityMiddleware(*identity))
	}
	router.Group(register)
	return router
}
