// Package inventory declares the room counter contract. Implementations apply
// each operation as one conditional update at the storage layer.
package inventory

import (
	"context"

	"roomstay/internal/domain/listings"
	"roomstay/internal/domain/shared/errs"
)

var (
	ErrNoRoomsAvailable = errs.Conflict("no_rooms_available", "inventory: no rooms available")
	// ErrAtCapacity means a release found available_rooms already equal to total_rooms.
	ErrAtCapacity = errs.Conflict("inventory_at_capacity", "inventory: all rooms already available")
)

// Ledger counts rooms per listing. It knows nothing about bookings.
type Ledger interface {
	// Reserve decrements available_rooms iff it is above zero.
	Reserve(ctx context.Context, id listings.ListingID) error
	// Release increments available_rooms iff it is below total_rooms.
	Release(ctx context.Context, id listings.ListingID) error
}
