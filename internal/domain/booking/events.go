package booking

import (
	"time"

	"roomstay/internal/domain/listings"
	"roomstay/internal/domain/shared/money"
)

const (
	EventRequested  = "booking.requested"
	EventConfirmed  = "booking.confirmed"
	EventCancelled  = "booking.cancelled"
	EventCheckedIn  = "booking.checked_in"
	EventCheckedOut = "booking.checked_out"
	EventPurged     = "booking.purged"
)

type BookingRequested struct {
	BookingID   BookingID          `json:"booking_id"`
	ListingID   listings.ListingID `json:"listing_id"`
	OwnerID     string             `json:"owner_id"`
	RequesterID string             `json:"requester_id"`
	GuestName   string             `json:"guest_name"`
	GuestEmail  string             `json:"guest_email,omitempty"`
	CheckIn     time.Time          `json:"check_in"`
	CheckOut    time.Time          `json:"check_out"`
	Total       money.Money        `json:"total"`
	At          time.Time          `json:"at"`
}

func (e BookingRequested) EventName() string     { return EventRequested }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingConfirmed struct {
	BookingID   BookingID          `json:"booking_id"`
	ListingID   listings.ListingID `json:"listing_id"`
	OwnerID     string             `json:"owner_id"`
	RequesterID string             `json:"requester_id"`
	GuestEmail  string             `json:"guest_email,omitempty"`
	By          Actor              `json:"by"`
	At          time.Time          `json:"at"`
}

func (e BookingConfirmed) EventName() string     { return EventConfirmed }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID     BookingID          `json:"booking_id"`
	ListingID     listings.ListingID `json:"listing_id"`
	OwnerID       string             `json:"owner_id"`
	RequesterID   string             `json:"requester_id"`
	GuestEmail    string             `json:"guest_email,omitempty"`
	PreviousState State              `json:"previous_state"`
	Reason        string             `json:"reason"`
	By            Actor              `json:"by"`
	At            time.Time          `json:"at"`
}

func (e BookingCancelled) EventName() string     { return EventCancelled }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type BookingCheckedIn struct {
	BookingID BookingID `json:"booking_id"`
	At        time.Time `json:"at"`
}

func (e BookingCheckedIn) EventName() string     { return EventCheckedIn }
func (e BookingCheckedIn) AggregateID() string   { return string(e.BookingID) }
func (e BookingCheckedIn) OccurredAt() time.Time { return e.At }

type BookingCheckedOut struct {
	BookingID BookingID `json:"booking_id"`
	At        time.Time `json:"at"`
}

func (e BookingCheckedOut) EventName() string     { return EventCheckedOut }
func (e BookingCheckedOut) AggregateID() string   { return string(e.BookingID) }
func (e BookingCheckedOut) OccurredAt() time.Time { return e.At }

type BookingPurged struct {
	BookingID     BookingID          `json:"booking_id"`
	ListingID     listings.ListingID `json:"listing_id"`
	PreviousState State              `json:"previous_state"`
	Released      bool               `json:"released"`
	At            time.Time          `json:"at"`
}

func (e BookingPurged) EventName() string     { return EventPurged }
func (e BookingPurged) AggregateID() string   { return string(e.BookingID) }
func (e BookingPurged) OccurredAt() time.Time { return e.At }
