package dto

import (
	"strings"
	"time"

	domainbooking "roomstay/internal/domain/booking"
	domainlistings "roomstay/internal/domain/listings"
	"roomstay/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type BookingListingSnapshot struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	City  string `json:"city,omitempty"`
}

type GuestContact struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	IDDocument string `json:"id_document,omitempty"`
}

type Booking struct {
	ID            string                 `json:"id"`
	Listing       BookingListingSnapshot `json:"listing"`
	RequesterID   string                 `json:"requester_id"`
	OwnerID       string                 `json:"owner_id"`
	CheckIn       time.Time              `json:"check_in"`
	CheckOut      time.Time              `json:"check_out"`
	DurationUnit  string                 `json:"duration_unit"`
	DurationCount int                    `json:"duration_count"`
	PerPeriod     MoneyDTO               `json:"per_period_price"`
	Total         MoneyDTO               `json:"total_price"`
	Guest         GuestContact           `json:"guest"`
	Notes         string                 `json:"notes,omitempty"`
	Status        string                 `json:"status"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	CancelledBy   string                 `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	ConfirmedAt   *time.Time             `json:"confirmed_at,omitempty"`
	CheckedInAt   *time.Time             `json:"checked_in_at,omitempty"`
	CheckedOutAt  *time.Time             `json:"checked_out_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{
		Amount:   value.Amount,
		Currency: value.Currency,
	}
}

// MapBooking renders a booking for a viewer. The guest id-document is masked
// unless showDocument is set.
func MapBooking(booking *domainbooking.Booking, listing *domainlistings.Listing, showDocument bool) Booking {
	snapshot := BookingListingSnapshot{ID: string(booking.ListingID)}
	if listing != nil {
		snapshot.Title = listing.Title
		snapshot.City = listing.City
	}
	guest := GuestContact{
		Name:       booking.Guest.Name,
		Phone:      booking.Guest.Phone,
		Email:      booking.Guest.Email,
		IDDocument: booking.Guest.IDDocument,
	}
	if !showDocument {
		guest.IDDocument = MaskDocument(guest.IDDocument)
	}
	return Booking{
		ID:            string(booking.ID),
		Listing:       snapshot,
		RequesterID:   booking.RequesterID,
		OwnerID:       booking.OwnerID,
		CheckIn:       booking.Stay.CheckIn,
		CheckOut:      booking.Stay.CheckOut,
		DurationUnit:  string(booking.Unit),
		DurationCount: booking.Count,
		PerPeriod:     MapMoney(booking.PerPeriod),
		Total:         MapMoney(booking.Total),
		Guest:         guest,
		Notes:         booking.Notes,
		Status:        string(booking.State),
		CancelReason:  booking.CancelReason,
		CancelledBy:   string(booking.CancelledBy),
		CancelledAt:   booking.CancelledAt,
		ConfirmedAt:   booking.ConfirmedAt,
		CheckedInAt:   booking.CheckedInAt,
		CheckedOutAt:  booking.CheckedOutAt,
		CreatedAt:     booking.CreatedAt,
		UpdatedAt:     booking.UpdatedAt,
	}
}

// MaskDocument keeps the last four characters.
func MaskDocument(doc string) string {
	if doc == "" {
		return ""
	}
	runes := []rune(doc)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
