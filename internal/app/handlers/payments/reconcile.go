package payments

import (
	"context"
	"errors"
	"log/slog"

	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/outbox"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/errs"
)

const defaultReconcileAttempts = 3

// Reconciler folds a gateway report into the payment and, when the payment
// status moves, drives the booking: success confirms it, failure cancels it
// and returns the room. Each attempt runs in one unit of work; attempts that
// lose an optimistic version race are retried from a fresh read.
type Reconciler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      handlersupport.Clock
	Logger     *slog.Logger
	Attempts   int
}

type Reconciliation struct {
	Payment *domainpayment.Payment
	Outcome domainpayment.Outcome
}

func (r *Reconciler) Apply(ctx context.Context, report domainpayment.Report) (Reconciliation, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = defaultReconcileAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var result Reconciliation
		err := handlersupport.InUnit(ctx, r.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			var err error
			result, err = r.applyOnce(ctx, unit, report)
			return err
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errs.ErrConcurrentUpdate) {
			return Reconciliation{}, err
		}
		lastErr = err
		if r.Logger != nil {
			r.Logger.Warn("payment reconciliation raced, retrying", "order_id", report.OrderID, "attempt", attempt)
		}
	}
	return Reconciliation{}, lastErr
}

func (r *Reconciler) applyOnce(ctx context.Context, unit uow.UnitOfWork, report domainpayment.Report) (Reconciliation, error) {
	p, err := unit.Payments().ByOrderID(ctx, report.OrderID)
	if err != nil {
		return Reconciliation{}, err
	}
	if report.GrossAmount != "" && !p.MatchesGrossAmount(report.GrossAmount) && r.Logger != nil {
		r.Logger.Warn("gateway amount differs from charge", "order_id", p.OrderID, "gross_amount", report.GrossAmount, "amount", p.Amount.Amount)
	}

	now := r.Clock.Now()
	outcome := p.Apply(report, now)
	if outcome.Suppressed() && r.Logger != nil {
		level := slog.LevelInfo
		if outcome.Current == domainpayment.StatusFailed && outcome.Reported == domainpayment.StatusSuccess {
			// Money arrived for a payment we already gave up on.
			level = slog.LevelError
		}
		r.Logger.Log(ctx, level, "payment status report ignored",
			"order_id", p.OrderID,
			"status", outcome.Current,
			"reported", outcome.Reported,
			"gateway_status", p.GatewayStatus,
		)
	}
	if err := unit.Payments().Save(ctx, p); err != nil {
		return Reconciliation{}, err
	}

	var booking *domainbooking.Booking
	if outcome.BecameSuccess() || outcome.BecameFailed() {
		booking, err = r.driveBooking(ctx, unit, p, outcome)
		if err != nil {
			return Reconciliation{}, err
		}
	}

	evs := outbox.Collect(p)
	if booking != nil {
		evs = append(evs, outbox.Collect(booking)...)
	}
	if err := outbox.RecordDomainEvents(ctx, r.Outbox, r.Encoder, evs); err != nil {
		return Reconciliation{}, err
	}
	if outcome.Changed() && r.Logger != nil {
		r.Logger.Info("payment status changed", "order_id", p.OrderID, "booking_id", p.BookingID, "from", outcome.Previous, "to", outcome.Current)
	}
	return Reconciliation{Payment: p, Outcome: outcome}, nil
}

// driveBooking returns the booking when it was changed, nil otherwise.
func (r *Reconciler) driveBooking(ctx context.Context, unit uow.UnitOfWork, p *domainpayment.Payment, outcome domainpayment.Outcome) (*domainbooking.Booking, error) {
	booking, err := unit.Bookings().ByID(ctx, p.BookingID)
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			if r.Logger != nil {
				r.Logger.Warn("payment references missing booking", "order_id", p.OrderID, "booking_id", p.BookingID)
			}
			return nil, nil
		}
		return nil, err
	}

	now := r.Clock.Now()
	var effect domainbooking.InventoryEffect
	switch {
	case outcome.BecameSuccess():
		effect, err = booking.Confirm(domainbooking.ActorGateway, now)
	case outcome.BecameFailed():
		effect, err = booking.Cancel("payment "+p.GatewayStatus, domainbooking.ActorGateway, now)
	}
	switch {
	case err == nil:
	case errors.Is(err, domainbooking.ErrAlreadyConfirmed), errors.Is(err, domainbooking.ErrAlreadyCancelled):
		return nil, nil
	case errs.IsKind(err, errs.KindConflict):
		if r.Logger != nil {
			level := slog.LevelWarn
			if outcome.BecameSuccess() {
				level = slog.LevelError
			}
			r.Logger.Log(ctx, level, "booking cannot follow payment status",
				"order_id", p.OrderID,
				"booking_id", booking.ID,
				"booking_state", booking.State,
				"payment_status", outcome.Current,
			)
		}
		return nil, nil
	default:
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, booking); err != nil {
		return nil, err
	}
	if err := handlersupport.ApplyEffect(ctx, unit.Inventory(), booking, effect, r.Logger); err != nil {
		return nil, err
	}
	return booking, nil
}
