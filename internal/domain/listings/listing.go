package listings

import (
	"context"
	"strings"
	"time"

	"roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/events"
)

var (
	ErrListingNotFound  = errs.NotFound("listing_not_found", "listings: listing not found")
	ErrListingExists    = errs.Conflict("listing_exists", "listings: listing already exists")
	ErrListingInactive  = errs.Conflict("listing_inactive", "listings: listing is not accepting bookings")
	ErrTitleRequired    = errs.Validation("title_required", "listings: title is required")
	ErrOwnerRequired    = errs.Validation("owner_required", "listings: owner is required")
	ErrRoomsTotal       = errs.Validation("rooms_total", "listings: total rooms must be positive")
	ErrRoomsOutOfBounds = errs.Validation("rooms_out_of_bounds", "listings: available rooms must be between 0 and total rooms")
)

type ListingID string
type OwnerID string

type ListingState string

const (
	ListingActive    ListingState = "ACTIVE"
	ListingSuspended ListingState = "SUSPENDED"
)

// Listing is owned by the catalog. The core reads its rates and owner and
// mutates AvailableRooms only through an inventory.Ledger.
type Listing struct {
	ID             ListingID
	Owner          OwnerID
	Title          string
	City           string
	State          ListingState
	TotalRooms     int
	AvailableRooms int
	Rates          pricing.RateTable
	CreatedAt      time.Time
	UpdatedAt      time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	// Create stores a new listing and fails with ErrListingExists when the id is taken.
	Create(ctx context.Context, listing *Listing) error
	ListByOwner(ctx context.Context, owner OwnerID) ([]*Listing, error)
}

type CreateParams struct {
	ID         ListingID
	Owner      OwnerID
	Title      string
	City       string
	TotalRooms int
	// Available defaults to TotalRooms when nil.
	Available *int
	Rates     pricing.RateTable
	Active    bool
	Now       time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errs.Validation("listing_id_required", "listings: id is required")
	}
	if strings.TrimSpace(string(params.Owner)) == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrTitleRequired
	}
	if params.TotalRooms <= 0 {
		return nil, ErrRoomsTotal
	}
	available := params.TotalRooms
	if params.Available != nil {
		available = *params.Available
	}
	if available < 0 || available > params.TotalRooms {
		return nil, ErrRoomsOutOfBounds
	}
	if err := params.Rates.Validate(); err != nil {
		return nil, err
	}
	state := ListingSuspended
	if params.Active {
		state = ListingActive
	}
	now := params.Now.UTC()
	l := &Listing{
		ID:             params.ID,
		Owner:          params.Owner,
		Title:          strings.TrimSpace(params.Title),
		City:           strings.TrimSpace(params.City),
		State:          state,
		TotalRooms:     params.TotalRooms,
		AvailableRooms: available,
		Rates:          params.Rates,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.Record(ListingImported{ListingID: l.ID, Owner: l.Owner, TotalRooms: l.TotalRooms, At: now})
	return l, nil
}

func (l *Listing) AcceptsBookings() bool {
	return l.State == ListingActive
}

type ListingImported struct {
	ListingID  ListingID
	Owner      OwnerID
	TotalRooms int
	At         time.Time
}

func (e ListingImported) EventName() string     { return "listing.imported" }
func (e ListingImported) AggregateID() string   { return string(e.ListingID) }
func (e ListingImported) OccurredAt() time.Time { return e.At }

// Clone returns a copy without pending events.
func (l *Listing) Clone() *Listing {
	cp := *l
	cp.EventRecorder = events.EventRecorder{}
	cp.Rates = l.Rates.Clone()
	return &cp
}
