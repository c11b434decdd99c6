package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/middleware"
	"roomstay/internal/app/policies"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	domainpayment "roomstay/internal/domain/payment"
)

const pollPaymentKey = "payments.poll"

// PollPaymentCommand asks the gateway for the current status. It is a
// command because a fresher status is reconciled into the store.
type PollPaymentCommand struct {
	Principal identity.Principal
	OrderID   string `validate:"required"`
}

func (c PollPaymentCommand) Key() string { return pollPaymentKey }

func (c PollPaymentCommand) Caller() identity.Principal { return c.Principal }

func (c PollPaymentCommand) RequiredRoles() []identity.Role { return nil }

func (c PollPaymentCommand) ManagesTransaction() bool { return true }

type PollPaymentHandler struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	Archive    policies.PayloadArchive
	Reconciler *Reconciler
	Timeout    time.Duration
	Logger     *slog.Logger
}

func (h *PollPaymentHandler) Handle(ctx context.Context, cmd PollPaymentCommand) (*dto.Payment, error) {
	local, err := h.load(ctx, cmd)
	if err != nil {
		return nil, err
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	report, err := h.Gateway.Status(callCtx, local.OrderID)
	cancel()
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("gateway status unavailable, serving local state", "order_id", local.OrderID, "error", err)
		}
		result := dto.MapPayment(local)
		result.Stale = true
		return &result, nil
	}
	if report.OrderID == "" {
		report.OrderID = local.OrderID
	}
	if h.Archive != nil && len(report.Raw) > 0 {
		if err := h.Archive.Archive(ctx, report.OrderID, report.Raw); err != nil && h.Logger != nil {
			h.Logger.Warn("payload archive failed", "order_id", report.OrderID, "error", err)
		}
	}

	res, err := h.Reconciler.Apply(ctx, report)
	if err != nil {
		return nil, err
	}
	result := dto.MapPayment(res.Payment)
	return &result, nil
}

func (h *PollPaymentHandler) load(ctx context.Context, cmd PollPaymentCommand) (*domainpayment.Payment, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	p, err := unit.Payments().ByOrderID(execCtx, domainpayment.OrderID(cmd.OrderID))
	if err != nil {
		return nil, err
	}
	if cmd.Principal.IsAdmin() || p.RequesterID == cmd.Principal.ID {
		return p, nil
	}
	booking, err := unit.Bookings().ByID(execCtx, p.BookingID)
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			return nil, domainpayment.ErrPaymentNotFound
		}
		return nil, err
	}
	if !authz.CanView(cmd.Principal, booking) {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return p, nil
}

var _ commands.Handler[PollPaymentCommand, *dto.Payment] = (*PollPaymentHandler)(nil)
var _ middleware.SelfTransacted = PollPaymentCommand{}
var _ authz.Guarded = PollPaymentCommand{}
