package uow

import (
	"context"

	"roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
	"roomstay/internal/domain/listings"
	"roomstay/internal/domain/payment"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Listings() listings.Repository
	Inventory() inventory.Ledger
	Bookings() booking.Repository
	Payments() payment.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
