package payments

import (
	"context"
	"log/slog"

	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	"roomstay/internal/app/middleware"
	"roomstay/internal/app/policies"
	domainpayment "roomstay/internal/domain/payment"
)

const applyNotificationKey = "payments.notification"

// ApplyNotificationCommand carries a webhook body exactly as received.
type ApplyNotificationCommand struct {
	Payload []byte `validate:"required"`
}

func (c ApplyNotificationCommand) Key() string { return applyNotificationKey }

func (c ApplyNotificationCommand) ManagesTransaction() bool { return true }

// ApplyNotificationHandler verifies and reconciles asynchronous gateway
// notifications. Duplicates and out-of-order deliveries are absorbed by the
// payment's status rules.
type ApplyNotificationHandler struct {
	Verifier   policies.SignatureVerifier
	Archive    policies.PayloadArchive
	Reconciler *Reconciler
	Logger     *slog.Logger
}

func (h *ApplyNotificationHandler) Handle(ctx context.Context, cmd ApplyNotificationCommand) (*dto.NotificationAck, error) {
	n, err := domainpayment.DecodeNotification(cmd.Payload)
	if err != nil {
		return nil, err
	}
	if h.Verifier != nil && !h.Verifier.Verify(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey) {
		if h.Logger != nil {
			h.Logger.Warn("gateway notification rejected", "order_id", n.OrderID, "reason", "signature")
		}
		return nil, domainpayment.ErrBadSignature
	}
	report := n.Report(cmd.Payload)

	if h.Archive != nil {
		if err := h.Archive.Archive(ctx, report.OrderID, cmd.Payload); err != nil && h.Logger != nil {
			h.Logger.Warn("payload archive failed", "order_id", report.OrderID, "error", err)
		}
	}

	res, err := h.Reconciler.Apply(ctx, report)
	if err != nil {
		return nil, err
	}
	return &dto.NotificationAck{
		OrderID: string(res.Payment.OrderID),
		Status:  string(res.Payment.Status),
		Changed: res.Outcome.Changed(),
	}, nil
}

var _ commands.Handler[ApplyNotificationCommand, *dto.NotificationAck] = (*ApplyNotificationHandler)(nil)
var _ middleware.SelfTransacted = ApplyNotificationCommand{}
