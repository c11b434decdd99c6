package memory

import (
	"context"
	"errors"
	"sync"

	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpayment "roomstay/internal/domain/payment"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ListingsRepo *ListingRepository
	BookingsRepo *BookingRepository
	PaymentsRepo *PaymentRepository
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Begin opens a journaled unit. Writes apply immediately and are undone on
// rollback; there is no read isolation between concurrent units.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ListingsRepo == nil || f.BookingsRepo == nil || f.PaymentsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		listings: f.ListingsRepo,
		bookings: f.BookingsRepo,
		payments: f.PaymentsRepo,
		readOnly: opts.ReadOnly,
	}, nil
}

// Unit is a uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	listings *ListingRepository
	bookings *BookingRepository
	payments *PaymentRepository
	readOnly bool

	mu       sync.Mutex
	undo     []func()
	onCommit []func()
	done     bool
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

var ErrUnitClosed = errors.New("memory: unit of work already finished")

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return ErrUnitClosed
	}
	u.done = true
	hooks := u.onCommit
	u.undo, u.onCommit = nil, nil
	u.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return nil
	}
	u.done = true
	undo := u.undo
	u.undo, u.onCommit = nil, nil
	u.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

func (u *Unit) journal(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undo = append(u.undo, fn)
}

func (u *Unit) afterCommit(fn func()) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return false
	}
	u.onCommit = append(u.onCommit, fn)
	return true
}

func unitFrom(ctx context.Context) *Unit {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil
	}
	mu, _ := unit.(*Unit)
	return mu
}

// journal registers undo with the unit bound to ctx, if any.
func journal(ctx context.Context, undo func()) {
	if u := unitFrom(ctx); u != nil {
		u.journal(undo)
	}
}

var errReadOnly = errors.New("memory: write in read-only unit of work")

func checkWritable(ctx context.Context) error {
	if u := unitFrom(ctx); u != nil && u.readOnly {
		return errReadOnly
	}
	return nil
}
