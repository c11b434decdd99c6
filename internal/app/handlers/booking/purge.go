package booking

import (
	"context"
	"log/slog"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/outbox"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
)

const purgeBookingKey = "booking.purge"

type PurgeBookingCommand struct {
	Principal identity.Principal
	BookingID string `validate:"required"`
}

func (c PurgeBookingCommand) Key() string { return purgeBookingKey }

func (c PurgeBookingCommand) Caller() identity.Principal { return c.Principal }

func (c PurgeBookingCommand) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleAdmin}
}

type PurgeBookingResult struct {
	BookingID string `json:"booking_id"`
	Released  bool   `json:"released"`
}

// PurgeBookingHandler hard-deletes a booking and its payments. A booking that
// still holds a room gives it back first.
type PurgeBookingHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   handlersupport.Clock
	Logger  *slog.Logger
}

func (h *PurgeBookingHandler) Handle(ctx context.Context, cmd PurgeBookingCommand) (*PurgeBookingResult, error) {
	if !cmd.Principal.IsAdmin() {
		return nil, identity.ErrForbidden
	}
	unit, err := handlersupport.RequireUnit(ctx)
	if err != nil {
		return nil, err
	}
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	effect := booking.Purge(h.Clock.Now())

	if err := unit.Bookings().Delete(ctx, booking.ID); err != nil {
		return nil, err
	}
	if err := unit.Payments().DeleteByBooking(ctx, booking.ID); err != nil {
		return nil, err
	}
	if err := handlersupport.ApplyEffect(ctx, unit.Inventory(), booking, effect, h.Logger); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, outbox.Collect(booking)); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Warn("booking purged", "booking_id", booking.ID, "state", booking.State, "admin_id", cmd.Principal.ID, "released", effect == domainbooking.EffectRelease)
	}
	return &PurgeBookingResult{BookingID: string(booking.ID), Released: effect == domainbooking.EffectRelease}, nil
}

var _ commands.Handler[PurgeBookingCommand, *PurgeBookingResult] = (*PurgeBookingHandler)(nil)
var _ authz.Guarded = PurgeBookingCommand{}
