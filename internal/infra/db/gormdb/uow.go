package gormdb

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpayment "roomstay/internal/domain/payment"
)

var (
	ErrUnitOfWorkNotConfigured = errors.New("gormdb: unit of work factory missing database")
	errReadOnly                = errors.New("gormdb: write attempted in a read-only unit of work")
)

// Factory opens one database transaction per unit of work. Read-only units
// run without a transaction and refuse writes.
type Factory struct {
	DB *gorm.DB

	ListingsRepo *ListingRepository
	BookingsRepo *BookingRepository
	PaymentsRepo *PaymentRepository
}

func NewFactory(db *gorm.DB) Factory {
	return Factory{
		DB:           db,
		ListingsRepo: NewListingRepository(db),
		BookingsRepo: NewBookingRepository(db),
		PaymentsRepo: NewPaymentRepository(db),
	}
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	u := &Unit{
		readOnly: opts.ReadOnly,
		listings: f.ListingsRepo,
		bookings: f.BookingsRepo,
		payments: f.PaymentsRepo,
	}
	if opts.ReadOnly {
		u.tx = f.DB
		return u, nil
	}
	tx := f.DB.WithContext(ctx).Begin(&sql.TxOptions{})
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	u.tx = tx
	return u, nil
}

type Unit struct {
	tx       *gorm.DB
	readOnly bool
	done     bool

	listings *ListingRepository
	bookings *BookingRepository
	payments *PaymentRepository
}

func (u *Unit) Listings() domainlistings.Repository {
	return u.listings
}

func (u *Unit) Inventory() inventory.Ledger {
	return u.listings
}

func (u *Unit) Bookings() domainbooking.Repository {
	return u.bookings
}

func (u *Unit) Payments() domainpayment.Repository {
	return u.payments
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if u.readOnly {
		return nil
	}
	return translate(u.tx.Commit().Error)
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if u.readOnly {
		return nil
	}
	return u.tx.Rollback().Error
}

// InjectContext makes repositories, the outbox and the stores below join
// this unit's transaction.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, unitKey{}, u)
}

type unitKey struct{}

// conn returns the session bound to ctx, or a plain session on db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if u, ok := ctx.Value(unitKey{}).(*Unit); ok && !u.done {
		return u.tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func writable(ctx context.Context) error {
	if u, ok := ctx.Value(unitKey{}).(*Unit); ok && u.readOnly {
		return errReadOnly
	}
	return nil
}
