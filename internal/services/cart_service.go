package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

var (
	// ErrCartItemNotFound indicates a decrement targeted a row the user's cart
	// does not hold.
	ErrCartItemNotFound = errors.New("cart: item not found")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog CatalogService

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog CatalogService

	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// Add merges one unit of the referenced item into the user's cart. The price,
// name and image are snapshotted from the catalog when the row is first
// created; a later Add with the same key only raises the quantity.
func (s *cartService) Add(ctx context.Context, cmd AddItemCommand) (domain.CartItem, error) {
	item, err := s.buildItem(ctx, cmd, true)
	if err != nil {
		return domain.CartItem{}, err
	}

	merged, err := s.carts.Merge(ctx, item)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("cart: merge item: %w", err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"userId":   merged.UserID,
		"itemKey":  merged.ItemKey(),
		"quantity": merged.Quantity,
	})
	return merged, nil
}

// Decrement lowers the matching row's quantity by one; the row disappears when
// the quantity reaches zero.
func (s *cartService) Decrement(ctx context.Context, cmd AddItemCommand) (domain.CartItem, error) {
	item, err := s.buildItem(ctx, cmd, false)
	if err != nil {
		return domain.CartItem{}, err
	}

	remaining, err := s.carts.Decrement(ctx, item.UserID, item.ItemKey())
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.CartItem{}, ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("cart: decrement item: %w", err)
	}
	return remaining, nil
}

func (s *cartService) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: list items: %w", err)
	}
	return items, nil
}

func (s *cartService) Clear(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		return fmt.Errorf("cart: clear items: %w", err)
	}
	return nil
}

// buildItem validates the item reference and, for adds, resolves the catalog
// snapshot. Decrements only need the key, so they skip the catalog call.
func (s *cartService) buildItem(ctx context.Context, cmd AddItemCommand, resolve bool) (domain.CartItem, error) {
	if cmd.UserID == 0 {
		return domain.CartItem{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if (cmd.DishID == nil) == (cmd.SetmealID == nil) {
		return domain.CartItem{}, fmt.Errorf("%w: exactly one of dish or setmeal is required", ErrValidation)
	}
	if cmd.SetmealID != nil && cmd.Flavor != "" {
		return domain.CartItem{}, fmt.Errorf("%w: flavor applies to dishes only", ErrValidation)
	}

	item := domain.CartItem{
		UserID:    cmd.UserID,
		DishID:    cmd.DishID,
		SetmealID: cmd.SetmealID,
		Flavor:    cmd.Flavor,
		Quantity:  1,
	}
	if !resolve {
		return item, nil
	}

	catalogItem, err := s.catalog.ResolveItem(ctx, cmd.DishID, cmd.SetmealID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.CartItem{}, fmt.Errorf("%w: unknown catalog item", ErrValidation)
		}
		return domain.CartItem{}, fmt.Errorf("%w: resolve catalog item: %v", ErrUpstream, err)
	}
	item.Name = catalogItem.Name
	item.Image = catalogItem.Image
	item.Amount = catalogItem.UnitPrice
	return item, nil
}
