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
	"roomstay/internal/app/outbox"
	"roomstay/internal/app/policies"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/idgen"
)

const (
	initiatePaymentKey    = "payments.initiate"
	defaultGatewayTimeout = 10 * time.Second
)

var ErrGatewayUnavailable = errs.Upstream("gateway_unavailable", "payment gateway request failed", nil)

type InitiatePaymentCommand struct {
	Principal       identity.Principal
	BookingID       string `validate:"required"`
	IdempotencyKeyV string
}

func (c InitiatePaymentCommand) Key() string { return initiatePaymentKey }

func (c InitiatePaymentCommand) Caller() identity.Principal { return c.Principal }

func (c InitiatePaymentCommand) RequiredRoles() []identity.Role { return nil }

func (c InitiatePaymentCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c InitiatePaymentCommand) IdempotencyScope() string { return c.Principal.ID }

func (c InitiatePaymentCommand) ResultPrototype() any { return &dto.Payment{} }

// ManagesTransaction keeps the gateway call outside any database transaction.
func (c InitiatePaymentCommand) ManagesTransaction() bool { return true }

// InitiatePaymentHandler opens a gateway transaction for a pending booking.
// Nothing is persisted unless the gateway answers with a token.
type InitiatePaymentHandler struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	OrderIDs   idgen.Generator
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Timeout    time.Duration
	Clock      handlersupport.Clock
	Logger     *slog.Logger
}

type initiatePlan struct {
	booking  *domainbooking.Booking
	existing *domainpayment.Payment
	orderID  domainpayment.OrderID
}

func (h *InitiatePaymentHandler) Handle(ctx context.Context, cmd InitiatePaymentCommand) (*dto.Payment, error) {
	plan, err := h.prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if plan.existing != nil {
		result := dto.MapPayment(plan.existing)
		result.Reused = true
		return &result, nil
	}

	txn, err := h.createTransaction(ctx, plan)
	if err != nil {
		return nil, err
	}

	var created *domainpayment.Payment
	err = handlersupport.InUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		booking, err := unit.Bookings().ByID(ctx, plan.booking.ID)
		if err != nil {
			return err
		}
		if booking.State != domainbooking.StatePending {
			return domainpayment.ErrBookingNotPayable
		}
		p, err := domainpayment.NewPayment(domainpayment.CreateParams{
			OrderID:     plan.orderID,
			Booking:     booking,
			SnapToken:   txn.Token,
			RedirectURL: txn.RedirectURL,
			Now:         h.Clock.Now(),
		})
		if err != nil {
			return err
		}
		if err := unit.Payments().Save(ctx, p); err != nil {
			return err
		}
		created = p
		return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, outbox.Collect(p))
	})
	if err != nil {
		if h.Logger != nil && errors.Is(err, domainpayment.ErrPaymentInProgress) {
			h.Logger.Warn("concurrent payment initiation lost", "booking_id", plan.booking.ID, "order_id", plan.orderID)
		}
		return nil, err
	}

	if h.Logger != nil {
		h.Logger.Info("payment initiated", "booking_id", created.BookingID, "order_id", created.OrderID, "amount", created.Amount.Amount)
	}
	result := dto.MapPayment(created)
	return &result, nil
}

// prepare runs the read-side checks and reserves an order id candidate.
func (h *InitiatePaymentHandler) prepare(ctx context.Context, cmd InitiatePaymentCommand) (initiatePlan, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return initiatePlan{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	booking, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return initiatePlan{}, err
	}
	if !authz.CanPay(cmd.Principal, booking) {
		return initiatePlan{}, identity.ErrForbidden.WithMessage("payment: only the requester may pay for this booking")
	}
	if booking.State != domainbooking.StatePending {
		return initiatePlan{}, domainpayment.ErrBookingNotPayable.WithMessage("payment: cannot pay for a %s booking", booking.State)
	}

	latest, err := unit.Payments().LatestForBooking(execCtx, booking.ID)
	switch {
	case err == nil:
		if latest.Status == domainpayment.StatusSuccess {
			return initiatePlan{}, domainpayment.ErrAlreadyPaid
		}
		if latest.Reusable() {
			return initiatePlan{booking: booking, existing: latest}, nil
		}
	case errors.Is(err, domainpayment.ErrPaymentNotFound):
	default:
		return initiatePlan{}, err
	}

	orderID, err := h.OrderIDs.Next(execCtx, func(ctx context.Context, candidate string) (bool, error) {
		return unit.Payments().Exists(ctx, domainpayment.OrderID(candidate))
	})
	if err != nil {
		return initiatePlan{}, err
	}
	return initiatePlan{booking: booking, orderID: domainpayment.OrderID(orderID)}, nil
}

func (h *InitiatePaymentHandler) createTransaction(ctx context.Context, plan initiatePlan) (policies.Transaction, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := plan.booking
	txn, err := h.Gateway.CreateTransaction(callCtx, policies.TransactionRequest{
		OrderID:  plan.orderID,
		Amount:   b.Total,
		ItemID:   string(b.ID),
		ItemName: "Booking " + string(b.ID),
		Customer: policies.Customer{
			Name:  b.Guest.Name,
			Email: b.Guest.Email,
			Phone: b.Guest.Phone,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("gateway create transaction failed", "booking_id", b.ID, "order_id", plan.orderID, "error", err)
		}
		if errs.IsKind(err, errs.KindUpstream) {
			return policies.Transaction{}, err
		}
		return policies.Transaction{}, ErrGatewayUnavailable.WithCause(err)
	}
	if txn.Token == "" {
		return policies.Transaction{}, domainpayment.ErrTokenRequired
	}
	return txn, nil
}

var _ commands.Handler[InitiatePaymentCommand, *dto.Payment] = (*InitiatePaymentHandler)(nil)
var _ middleware.IdempotentCommand = InitiatePaymentCommand{}
var _ middleware.SelfTransacted = InitiatePaymentCommand{}
var _ authz.Guarded = InitiatePaymentCommand{}
