// Package catalog provides a static, in-memory implementation of the catalog
// lookup used by the cart. The full catalog subsystem lives in another
// service; this adapter covers development and tests.
package catalog

import (
	"context"
	"errors"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// StaticCatalog resolves items from fixed maps keyed by catalog id.
type StaticCatalog struct {
	dishes   map[int64]domain.CatalogItem
	setmeals map[int64]domain.CatalogItem
}

// NewStaticCatalog builds a catalog over the given dish and setmeal tables.
// Nil maps are treated as empty.
func NewStaticCatalog(dishes, setmeals map[int64]domain.CatalogItem) *StaticCatalog {
	if dishes == nil {
		dishes = map[int64]domain.CatalogItem{}
	}
	if setmeals == nil {
		setmeals = map[int64]domain.CatalogItem{}
	}
	return &StaticCatalog{dishes: dishes, setmeals: setmeals}
}

// ResolveItem returns the snapshot for the referenced dish or setmeal.
func (c *StaticCatalog) ResolveItem(ctx context.Context, dishID, setmealID *int64) (domain.CatalogItem, error) {
	switch {
	case dishID != nil:
		if item, ok := c.dishes[*dishID]; ok {
			return item, nil
		}
		return domain.CatalogItem{}, repositories.NotFound("catalog.resolve_dish")
	case setmealID != nil:
		if item, ok := c.setmeals[*setmealID]; ok {
			return item, nil
		}
		return domain.CatalogItem{}, repositories.NotFound("catalog.resolve_setmeal")
	default:
		return domain.CatalogItem{}, errors.New("catalog: item reference is required")
	}
}
