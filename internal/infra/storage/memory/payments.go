package memory

import (
	"context"
	"sync"

	domainbooking "roomstay/internal/domain/booking"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/errs"
)

// PaymentRepository indexes active payments by booking so a second active
// payment for the same booking is refused.
type PaymentRepository struct {
	mu     sync.RWMutex
	items  map[domainpayment.OrderID]*domainpayment.Payment
	active map[string]domainpayment.OrderID
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		items:  make(map[domainpayment.OrderID]*domainpayment.Payment),
		active: make(map[string]domainpayment.OrderID),
	}
}

func (r *PaymentRepository) ByOrderID(ctx context.Context, id domainpayment.OrderID) (*domainpayment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) Exists(ctx context.Context, id domainpayment.OrderID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok, nil
}

func (r *PaymentRepository) LatestForBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainpayment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domainpayment.Payment
	for _, p := range r.items {
		if p.BookingID != bookingID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) || (p.CreatedAt.Equal(latest.CreatedAt) && p.OrderID > latest.OrderID) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return latest.Clone(), nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.OrderID
	current, exists := r.items[id]
	if p.Version == 0 {
		if exists {
			return errs.ErrConcurrentUpdate.WithMessage("memory: payment %s already exists", id)
		}
	} else {
		if !exists {
			return domainpayment.ErrPaymentNotFound
		}
		if current.Version != p.Version {
			return errs.ErrConcurrentUpdate
		}
	}
	if key := p.ActiveBookingID(); key != "" {
		if holder, taken := r.active[key]; taken && holder != id {
			return domainpayment.ErrPaymentInProgress
		}
	}

	prevActive := ""
	if current != nil {
		prevActive = current.ActiveBookingID()
	}
	if prevActive != "" {
		delete(r.active, prevActive)
	}
	if key := p.ActiveBookingID(); key != "" {
		r.active[key] = id
	}
	p.Version++
	r.items[id] = p.Clone()
	newActive := p.ActiveBookingID()
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if newActive != "" {
			delete(r.active, newActive)
		}
		if current == nil {
			delete(r.items, id)
			return
		}
		r.items[id] = current
		if prevActive != "" {
			r.active[prevActive] = id
		}
	})
	return nil
}

func (r *PaymentRepository) DeleteByBooking(ctx context.Context, bookingID domainbooking.BookingID) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]*domainpayment.Payment, 0)
	for id, p := range r.items {
		if p.BookingID == bookingID {
			removed = append(removed, p)
			delete(r.items, id)
		}
	}
	activeHolder, hadActive := r.active[string(bookingID)]
	delete(r.active, string(bookingID))
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, p := range removed {
			r.items[p.OrderID] = p
		}
		if hadActive {
			r.active[string(bookingID)] = activeHolder
		}
	})
	return nil
}

var _ domainpayment.Repository = (*PaymentRepository)(nil)
