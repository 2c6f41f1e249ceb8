// Package memory provides mutex-guarded in-process adapters for the
// persistence interfaces. They back the test suite and the zero-dependency dev
// mode; conditional-write semantics mirror the Postgres adapters exactly.
package memory

import (
	"context"
	"sync"

	"github.com/plateful/api/internal/domain"
)

// Store holds all in-memory state behind a single mutex shared by the order
// and cart repositories, which makes every repository call atomic and lets the
// unit of work give Submit its all-or-nothing guarantee cheaply.
type Store struct {
	mu sync.Mutex

	orders      map[int64]domain.Order
	ordersByNum map[string]int64
	lines       map[int64][]domain.OrderLine
	carts       map[int64]map[string]domain.CartItem
	nextOrderID int64
	nextLineID  int64
	nextCartID  int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		orders:      make(map[int64]domain.Order),
		ordersByNum: make(map[string]int64),
		lines:       make(map[int64][]domain.OrderLine),
		carts:       make(map[int64]map[string]domain.CartItem),
	}
}

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{store: s} }

// Carts returns the cart repository view of the store.
func (s *Store) Carts() *CartRepository { return &CartRepository{store: s} }

// UnitOfWork returns a transactional boundary over the store. The store's
// single mutex already serialises individual operations; RunInTx runs the
// function while other writers are excluded so multi-step sequences such as
// order insert plus cart clear observe no interleaving.
func (s *Store) UnitOfWork() *UnitOfWork { return &UnitOfWork{store: s} }

// UnitOfWork serialises a function against all other store access.
type UnitOfWork struct {
	store *Store
}

type txKey struct{}

// RunInTx executes fn while holding the store lock. Repository methods invoked
// inside fn detect the held lock through the context and skip re-locking.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, u.store))
}

// lock acquires the store mutex unless the context indicates it is already
// held by an enclosing RunInTx.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if held, ok := ctx.Value(txKey{}).(*Store); ok && held == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}
