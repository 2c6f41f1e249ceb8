// Package directory provides a static address-book lookup. The real address
// book is owned by the user-profile subsystem; this adapter covers
// development and tests.
package directory

import (
	"context"

	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// StaticAddressDirectory resolves addresses from a fixed table keyed by id.
type StaticAddressDirectory struct {
	addresses map[int64]domain.Address
}

// NewStaticAddressDirectory builds a directory over the given address table.
func NewStaticAddressDirectory(addresses map[int64]domain.Address) *StaticAddressDirectory {
	if addresses == nil {
		addresses = map[int64]domain.Address{}
	}
	return &StaticAddressDirectory{addresses: addresses}
}

// GetAddress returns the address with the given id.
func (d *StaticAddressDirectory) GetAddress(ctx context.Context, addressID int64) (domain.Address, error) {
	if addr, ok := d.addresses[addressID]; ok {
		return addr, nil
	}
	return domain.Address{}, repositories.NotFound("directory.get_address")
}
