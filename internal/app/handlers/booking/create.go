package booking

import (
	"context"
	"log/slog"
	"time"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/middleware"
	"roomstay/internal/app/outbox"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	domainlistings "roomstay/internal/domain/listings"
	domainpricing "roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/idgen"
)

const createBookingKey = "booking.create"

type CreateBookingCommand struct {
	Principal       identity.Principal
	ListingID       string    `validate:"required"`
	CheckIn         time.Time `validate:"required"`
	DurationUnit    string    `validate:"required"`
	DurationCount   int
	GuestName       string    `validate:"required,max=120"`
	GuestPhone      string    `validate:"omitempty,max=32"`
	GuestEmail      string    `validate:"omitempty,email"`
	GuestIDDocument string    `validate:"omitempty,max=64"`
	Notes           string    `validate:"max=1000"`
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) Caller() identity.Principal { return c.Principal }

func (c CreateBookingCommand) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleRequester}
}

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) IdempotencyScope() string { return c.Principal.ID }

func (c CreateBookingCommand) ResultPrototype() any { return &dto.Booking{} }

// CreateBookingHandler prices the stay, stores a pending booking and takes one
// room from the listing, all in the unit bound by the transaction middleware.
type CreateBookingHandler struct {
	Codes   idgen.Generator
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   handlersupport.Clock
	Logger  *slog.Logger
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.Booking, error) {
	unit, err := handlersupport.RequireUnit(ctx)
	if err != nil {
		return nil, err
	}

	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(cmd.ListingID))
	if err != nil {
		return nil, err
	}
	if !listing.AcceptsBookings() {
		return nil, domainlistings.ErrListingInactive
	}

	durationUnit, err := domainpricing.ParseUnit(cmd.DurationUnit)
	if err != nil {
		return nil, err
	}
	quote, err := domainpricing.Calculate(domainpricing.Request{
		Rates:   listing.Rates,
		CheckIn: cmd.CheckIn,
		Unit:    durationUnit,
		Count:   cmd.DurationCount,
	})
	if err != nil {
		return nil, err
	}

	code, err := h.Codes.Next(ctx, func(ctx context.Context, candidate string) (bool, error) {
		return unit.Bookings().Exists(ctx, domainbooking.BookingID(candidate))
	})
	if err != nil {
		return nil, err
	}

	now := h.Clock.Now()
	booking, effect, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:          domainbooking.BookingID(code),
		Listing:     listing,
		RequesterID: cmd.Principal.ID,
		Quote:       quote,
		Guest: domainbooking.Guest{
			Name:       cmd.GuestName,
			Phone:      cmd.GuestPhone,
			Email:      cmd.GuestEmail,
			IDDocument: cmd.GuestIDDocument,
		},
		Notes: cmd.Notes,
		Now:   now,
	})
	if err != nil {
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, booking); err != nil {
		return nil, err
	}
	if err := handlersupport.ApplyEffect(ctx, unit.Inventory(), booking, effect, h.Logger); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, outbox.Collect(booking)); err != nil {
		return nil, err
	}

	if h.Logger != nil {
		h.Logger.Info("booking requested",
			"booking_id", booking.ID,
			"listing_id", booking.ListingID,
			"requester_id", booking.RequesterID,
			"unit", booking.Unit,
			"count", booking.Count,
			"total", booking.Total.Amount,
		)
	}
	result := dto.MapBooking(booking, listing, true)
	return &result, nil
}

var _ commands.Handler[CreateBookingCommand, *dto.Booking] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
var _ authz.Guarded = CreateBookingCommand{}
