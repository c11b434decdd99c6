package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
)

// ListingRepository keeps listings and is also their inventory ledger: both
// counter operations check and update under the same lock.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrListingNotFound
	}
	return listing.Clone(), nil
}

func (r *ListingRepository) Create(ctx context.Context, listing *domainlistings.Listing) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[listing.ID]; exists {
		return domainlistings.ErrListingExists
	}
	r.items[listing.ID] = listing.Clone()
	id := listing.ID
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, id)
	})
	return nil
}

func (r *ListingRepository) ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainlistings.Listing, 0)
	for _, listing := range r.items {
		if listing.Owner == owner {
			out = append(out, listing.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ListingRepository) Reserve(ctx context.Context, id domainlistings.ListingID) error {
	return r.adjust(ctx, id, -1)
}

func (r *ListingRepository) Release(ctx context.Context, id domainlistings.ListingID) error {
	return r.adjust(ctx, id, +1)
}

func (r *ListingRepository) adjust(ctx context.Context, id domainlistings.ListingID, delta int) error {
	if err := checkWritable(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.items[id]
	if !ok {
		return domainlistings.ErrListingNotFound
	}
	next := listing.AvailableRooms + delta
	switch {
	case next < 0:
		return inventory.ErrNoRoomsAvailable
	case next > listing.TotalRooms:
		return inventory.ErrAtCapacity
	}
	listing.AvailableRooms = next
	listing.UpdatedAt = time.Now().UTC()
	journal(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if l, ok := r.items[id]; ok {
			l.AvailableRooms -= delta
		}
	})
	return nil
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
var _ inventory.Ledger = (*ListingRepository)(nil)
