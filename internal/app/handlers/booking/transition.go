package booking

import (
	"context"
	"log/slog"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/outbox"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	"roomstay/internal/domain/shared/errs"
)

const transitionBookingKey = "booking.transition"

var ErrUnknownAction = errs.Validation("unknown_action", "booking: unknown action")

type TransitionBookingCommand struct {
	Principal identity.Principal
	BookingID string `validate:"required"`
	Action    string `validate:"required"`
	Reason    string `validate:"max=500"`
}

func (c TransitionBookingCommand) Key() string { return transitionBookingKey }

func (c TransitionBookingCommand) Caller() identity.Principal { return c.Principal }

func (c TransitionBookingCommand) RequiredRoles() []identity.Role { return nil }

// TransitionBookingHandler drives owner, requester and admin transitions.
// The booking is written under its version guard before the ledger is
// touched, so a stale retry fails before it can release twice.
type TransitionBookingHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   handlersupport.Clock
	Logger  *slog.Logger
}

func (h *TransitionBookingHandler) Handle(ctx context.Context, cmd TransitionBookingCommand) (*dto.Booking, error) {
	action, ok := authz.ParseAction(cmd.Action)
	if !ok {
		return nil, ErrUnknownAction.WithMessage("booking: unknown action %q", cmd.Action)
	}
	unit, err := handlersupport.RequireUnit(ctx)
	if err != nil {
		return nil, err
	}
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	actor := authz.ActorFor(cmd.Principal, booking, action)
	if actor == "" {
		return nil, identity.ErrForbidden.WithMessage("booking: caller may not %s this booking", action)
	}

	previous := booking.State
	now := h.Clock.Now()
	var effect domainbooking.InventoryEffect
	switch action {
	case authz.ActionConfirm:
		effect, err = booking.Confirm(actor, now)
	case authz.ActionReject:
		effect, err = booking.Reject(cmd.Reason, actor, now)
	case authz.ActionCancel:
		effect, err = booking.Cancel(cmd.Reason, actor, now)
	case authz.ActionCheckIn:
		effect, err = booking.CheckIn(now)
	case authz.ActionCheckOut:
		effect, err = booking.CheckOut(now)
	}
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
		h.Logger.Info("booking transitioned",
			"booking_id", booking.ID,
			"action", action,
			"actor", actor,
			"from", previous,
			"to", booking.State,
			"inventory", effect.String(),
		)
	}
	listing, _ := unit.Listings().ByID(ctx, booking.ListingID)
	result := dto.MapBooking(booking, listing, authz.CanSeeGuestDocument(cmd.Principal, booking))
	return &result, nil
}

var _ commands.Handler[TransitionBookingCommand, *dto.Booking] = (*TransitionBookingHandler)(nil)
var _ authz.Guarded = TransitionBookingCommand{}
