package memory

import (
	"context"
	"sort"
	"sync"

	domainbooking "roomstay/internal/domain/booking"
	domainlistings "roomstay/internal/domain/listings"
	"roomstay/internal/domain/shared/errs"
)

type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *BookingRepository) Exists(ctx context.Context, id domainbooking.BookingID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok, nil
}

func (r *BookingRepository) Save(ctx context.Context, booking *domainbooking.Booking) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := booking.ID
	current, exists := r.items[id]
	if booking.Version == 0 {
		if exists {
			return errs.ErrConcurrentUpdate.WithMessage("memory: booking %s already exists", id)
		}
	} else {
		if !exists {
			return domainbooking.ErrBookingNotFound
		}
		if current.Version != booking.Version {
			return errs.ErrConcurrentUpdate
		}
	}
	booking.Version++
	r.items[id] = booking.Clone()
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current == nil {
			delete(r.items, id)
			return
		}
		r.items[id] = current
	})
	return nil
}

func (r *BookingRepository) Delete(ctx context.Context, id domainbooking.BookingID) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[id]
	if !ok {
		return domainbooking.ErrBookingNotFound
	}
	delete(r.items, id)
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = current
	})
	return nil
}

func (r *BookingRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.RequesterID == requesterID }), nil
}

func (r *BookingRepository) ListByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.ListingID == listingID }), nil
}

func (r *BookingRepository) filter(match func(*domainbooking.Booking) bool) []*domainbooking.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
