package booking

import (
	"context"
	"strings"
	"time"

	"roomstay/internal/domain/listings"
	"roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/events"
	"roomstay/internal/domain/shared/money"
)

var (
	ErrBookingNotFound    = errs.NotFound("booking_not_found", "booking: not found")
	ErrAlreadyConfirmed   = errs.Conflict("already_confirmed", "booking: already confirmed")
	ErrAlreadyCancelled   = errs.Conflict("already_cancelled", "booking: already cancelled")
	ErrInvalidTransition  = errs.Conflict("invalid_transition", "booking: invalid state transition")
	ErrRequesterRequired  = errs.Validation("requester_required", "booking: requester is required")
	ErrGuestNameRequired  = errs.Validation("guest_name_required", "booking: guest name is required")
	ErrGuestContactNeeded = errs.Validation("guest_contact_required", "booking: guest phone or email is required")
	ErrTotalNotPositive   = errs.Validation("total_not_positive", "booking: total price must be positive")
)

const (
	DefaultCancelReason = "cancelled by requester"
	DefaultRejectReason = "rejected by owner"
)

type BookingID string

type State string

const (
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateCheckedIn  State = "checked_in"
	StateCheckedOut State = "checked_out"
	StateCancelled  State = "cancelled"
)

func ParseState(raw string) (State, bool) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatePending, StateConfirmed, StateCheckedIn, StateCheckedOut, StateCancelled:
		return s, true
	}
	return "", false
}

func (s State) Terminal() bool {
	return s == StateCheckedOut || s == StateCancelled
}

// InventoryEffect tells the caller which ledger operation a transition needs.
type InventoryEffect int

const (
	EffectNone InventoryEffect = iota
	EffectReserve
	EffectRelease
)

func (e InventoryEffect) String() string {
	switch e {
	case EffectReserve:
		return "reserve"
	case EffectRelease:
		return "release"
	default:
		return "none"
	}
}

// Actor identifies who drove a transition.
type Actor string

const (
	ActorRequester Actor = "requester"
	ActorOwner     Actor = "owner"
	ActorAdmin     Actor = "admin"
	ActorGateway   Actor = "gateway"
)

// Guest is a snapshot of the contact details given at booking time.
type Guest struct {
	Name       string
	Phone      string
	Email      string
	IDDocument string
}

type Booking struct {
	ID           BookingID
	ListingID    listings.ListingID
	OwnerID      string
	RequesterID  string
	Stay         daterange.DateRange
	Unit         pricing.DurationUnit
	Count        int
	PerPeriod    money.Money
	Total        money.Money
	Guest        Guest
	Notes        string
	State        State
	CancelReason string
	CancelledBy  Actor
	CancelledAt  *time.Time
	ConfirmedAt  *time.Time
	CheckedInAt  *time.Time
	CheckedOutAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Exists(ctx context.Context, id BookingID) (bool, error)
	// Save inserts when Version is zero, otherwise updates only if the stored
	// version still matches; it bumps Version on success.
	Save(ctx context.Context, booking *Booking) error
	Delete(ctx context.Context, id BookingID) error
	ListByRequester(ctx context.Context, requesterID string) ([]*Booking, error)
	ListByListing(ctx context.Context, listingID listings.ListingID) ([]*Booking, error)
}

type CreateParams struct {
	ID          BookingID
	Listing     *listings.Listing
	RequesterID string
	Quote       pricing.Quote
	Guest       Guest
	Notes       string
	Now         time.Time
}

// NewBooking creates a pending booking. The returned effect is always
// EffectReserve: the caller must reserve a room in the same unit of work.
func NewBooking(params CreateParams) (*Booking, InventoryEffect, error) {
	if strings.TrimSpace(params.RequesterID) == "" {
		return nil, EffectNone, ErrRequesterRequired
	}
	guest := Guest{
		Name:       strings.TrimSpace(params.Guest.Name),
		Phone:      strings.TrimSpace(params.Guest.Phone),
		Email:      strings.TrimSpace(params.Guest.Email),
		IDDocument: strings.TrimSpace(params.Guest.IDDocument),
	}
	if guest.Name == "" {
		return nil, EffectNone, ErrGuestNameRequired
	}
	if guest.Phone == "" && guest.Email == "" {
		return nil, EffectNone, ErrGuestContactNeeded
	}
	if !params.Quote.Total.IsPositive() {
		return nil, EffectNone, ErrTotalNotPositive
	}
	stay, err := daterange.New(params.Quote.CheckIn, params.Quote.CheckOut)
	if err != nil {
		return nil, EffectNone, ErrInvalidStay.WithCause(err)
	}
	now := params.Now.UTC()
	if err := ValidateStay(stay, now); err != nil {
		return nil, EffectNone, err
	}

	b := &Booking{
		ID:          params.ID,
		ListingID:   params.Listing.ID,
		OwnerID:     string(params.Listing.Owner),
		RequesterID: params.RequesterID,
		Stay:        stay,
		Unit:        params.Quote.Unit,
		Count:       params.Quote.Count,
		PerPeriod:   params.Quote.PerPeriod,
		Total:       params.Quote.Total,
		Guest:       guest,
		Notes:       strings.TrimSpace(params.Notes),
		State:       StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Record(BookingRequested{
		BookingID:   b.ID,
		ListingID:   b.ListingID,
		OwnerID:     b.OwnerID,
		RequesterID: b.RequesterID,
		GuestName:   guest.Name,
		GuestEmail:  guest.Email,
		CheckIn:     stay.CheckIn,
		CheckOut:    stay.CheckOut,
		Total:       b.Total,
		At:          now,
	})
	return b, EffectReserve, nil
}

// HoldsRoom reports whether the booking still occupies a room in the ledger.
func (b *Booking) HoldsRoom() bool {
	switch b.State {
	case StatePending, StateConfirmed, StateCheckedIn:
		return true
	}
	return false
}

func (b *Booking) Confirm(by Actor, now time.Time) (InventoryEffect, error) {
	switch b.State {
	case StatePending:
	case StateConfirmed:
		return EffectNone, ErrAlreadyConfirmed
	default:
		return EffectNone, b.invalid("confirm")
	}
	at := now.UTC()
	b.State = StateConfirmed
	b.ConfirmedAt = &at
	b.UpdatedAt = at
	b.Record(BookingConfirmed{BookingID: b.ID, ListingID: b.ListingID, OwnerID: b.OwnerID, RequesterID: b.RequesterID, GuestEmail: b.Guest.Email, By: by, At: at})
	return EffectNone, nil
}

// Reject is the owner's refusal of a pending booking.
func (b *Booking) Reject(reason string, by Actor, now time.Time) (InventoryEffect, error) {
	switch b.State {
	case StatePending:
	case StateCancelled:
		return EffectNone, ErrAlreadyCancelled
	default:
		return EffectNone, b.invalid("reject")
	}
	return b.cancel(orDefault(reason, DefaultRejectReason), by, now), nil
}

// Cancel ends a pending or confirmed booking and releases its room.
func (b *Booking) Cancel(reason string, by Actor, now time.Time) (InventoryEffect, error) {
	switch b.State {
	case StatePending, StateConfirmed:
	case StateCancelled:
		return EffectNone, ErrAlreadyCancelled
	default:
		return EffectNone, b.invalid("cancel")
	}
	return b.cancel(orDefault(reason, DefaultCancelReason), by, now), nil
}

func (b *Booking) cancel(reason string, by Actor, now time.Time) InventoryEffect {
	at := now.UTC()
	previous := b.State
	b.State = StateCancelled
	b.CancelReason = reason
	b.CancelledBy = by
	b.CancelledAt = &at
	b.UpdatedAt = at
	b.Record(BookingCancelled{
		BookingID:     b.ID,
		ListingID:     b.ListingID,
		OwnerID:       b.OwnerID,
		RequesterID:   b.RequesterID,
		GuestEmail:    b.Guest.Email,
		PreviousState: previous,
		Reason:        reason,
		By:            by,
		At:            at,
	})
	return EffectRelease
}

func (b *Booking) CheckIn(now time.Time) (InventoryEffect, error) {
	if b.State != StateConfirmed {
		return EffectNone, b.invalid("check in")
	}
	at := now.UTC()
	b.State = StateCheckedIn
	b.CheckedInAt = &at
	b.UpdatedAt = at
	b.Record(BookingCheckedIn{BookingID: b.ID, At: at})
	return EffectNone, nil
}

func (b *Booking) CheckOut(now time.Time) (InventoryEffect, error) {
	if b.State != StateCheckedIn {
		return EffectNone, b.invalid("check out")
	}
	at := now.UTC()
	b.State = StateCheckedOut
	b.CheckedOutAt = &at
	b.UpdatedAt = at
	b.Record(BookingCheckedOut{BookingID: b.ID, At: at})
	return EffectNone, nil
}

// Purge marks the booking for administrative deletion. A booking that still
// holds its room must have it released before the record goes away.
func (b *Booking) Purge(now time.Time) InventoryEffect {
	effect := EffectNone
	if b.HoldsRoom() {
		effect = EffectRelease
	}
	b.Record(BookingPurged{BookingID: b.ID, ListingID: b.ListingID, PreviousState: b.State, Released: effect == EffectRelease, At: now.UTC()})
	return effect
}

// Clone returns a deep copy without pending events. Stores use it so callers
// never share mutable state.
func (b *Booking) Clone() *Booking {
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	cp.CancelledAt = cloneTime(b.CancelledAt)
	cp.ConfirmedAt = cloneTime(b.ConfirmedAt)
	cp.CheckedInAt = cloneTime(b.CheckedInAt)
	cp.CheckedOutAt = cloneTime(b.CheckedOutAt)
	return &cp
}

func (b *Booking) invalid(action string) error {
	return ErrInvalidTransition.WithMessage("booking: cannot %s a %s booking", action, b.State)
}

func orDefault(reason, def string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return def
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
