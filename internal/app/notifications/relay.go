// Package notifications turns committed domain events into messages for
// guests and listing owners.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"roomstay/internal/app/policies"
	domainbooking "roomstay/internal/domain/booking"
	domainpayment "roomstay/internal/domain/payment"
)

const (
	TemplateBookingReceived  = "booking_received"
	TemplateBookingRequested = "booking_requested_owner"
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateOwnerCancelled   = "booking_cancelled_owner"
	TemplatePaymentReceipt   = "payment_receipt"
	TemplatePaymentFailed    = "payment_failed"
)

// Event is one committed domain event as delivered by a relay transport.
type Event struct {
	ID   string
	Name string
	Data json.RawMessage
}

// Inbox remembers processed event ids for one consumer.
type Inbox interface {
	// Seen records eventID and reports whether it had been recorded before.
	Seen(ctx context.Context, eventID string) (bool, error)
}

type Relay struct {
	Notifier policies.Notifier
	Inbox    Inbox
	Logger   *slog.Logger
}

// Handle delivers the notifications for ev. Only inbox and decoding failures
// are returned; delivery failures are logged and dropped.
func (r *Relay) Handle(ctx context.Context, ev Event) error {
	if r.Inbox != nil && ev.ID != "" {
		seen, err := r.Inbox.Seen(ctx, ev.ID)
		if err != nil {
			return err
		}
		if seen {
			r.debug("duplicate event skipped", "event_id", ev.ID, "event", ev.Name)
			return nil
		}
	}
	msgs, err := Render(ev)
	if err != nil {
		return err
	}
	for _, n := range msgs {
		if err := r.Notifier.Send(ctx, n); err != nil {
			if r.Logger != nil {
				r.Logger.Warn("notification delivery failed", "template", n.Template, "reference", n.Reference, "error", err)
			}
			continue
		}
		r.debug("notification sent", "template", n.Template, "reference", n.Reference)
	}
	return nil
}

func (r *Relay) debug(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Debug(msg, args...)
	}
}

// Render maps an event to zero or more notifications.
func Render(ev Event) ([]policies.Notification, error) {
	switch ev.Name {
	case domainbooking.EventRequested:
		var e domainbooking.BookingRequested
		if err := decode(ev, &e); err != nil {
			return nil, err
		}
		data := map[string]any{
			"booking_id": e.BookingID,
			"listing_id": e.ListingID,
			"guest_name": e.GuestName,
			"check_in":   e.CheckIn,
			"check_out":  e.CheckOut,
			"total":      e.Total.Amount,
			"currency":   e.Total.Currency,
		}
		return []policies.Notification{
			{Template: TemplateBookingRequested, RecipientID: e.OwnerID, Reference: string(e.BookingID), Data: data},
			{Template: TemplateBookingReceived, RecipientID: e.RequesterID, Email: e.GuestEmail, Reference: string(e.BookingID), Data: data},
		}, nil
	case domainbooking.EventConfirmed:
		var e domainbooking.BookingConfirmed
		if err := decode(ev, &e); err != nil {
			return nil, err
		}
		return []policies.Notification{{
			Template:    TemplateBookingConfirmed,
			RecipientID: e.RequesterID,
			Email:       e.GuestEmail,
			Reference:   string(e.BookingID),
			Data:        map[string]any{"booking_id": e.BookingID, "listing_id": e.ListingID},
		}}, nil
	case domainbooking.EventCancelled:
		var e domainbooking.BookingCancelled
		if err := decode(ev, &e); err != nil {
			return nil, err
		}
		data := map[string]any{"booking_id": e.BookingID, "reason": e.Reason, "by": e.By}
		out := []policies.Notification{{Template: TemplateBookingCancelled, RecipientID: e.RequesterID, Email: e.GuestEmail, Reference: string(e.BookingID), Data: data}}
		if e.By != domainbooking.ActorOwner {
			out = append(out, policies.Notification{Template: TemplateOwnerCancelled, RecipientID: e.OwnerID, Reference: string(e.BookingID), Data: data})
		}
		return out, nil
	case domainpayment.EventSucceeded:
		var e domainpayment.PaymentSucceeded
		if err := decode(ev, &e); err != nil {
			return nil, err
		}
		return []policies.Notification{{
			Template:    TemplatePaymentReceipt,
			RecipientID: e.RequesterID,
			Reference:   string(e.OrderID),
			Data: map[string]any{
				"order_id":   e.OrderID,
				"booking_id": e.BookingID,
				"amount":     e.Amount.Amount,
				"currency":   e.Amount.Currency,
				"method":     e.Method,
			},
		}}, nil
	case domainpayment.EventFailed:
		var e domainpayment.PaymentFailed
		if err := decode(ev, &e); err != nil {
			return nil, err
		}
		return []policies.Notification{{
			Template:    TemplatePaymentFailed,
			RecipientID: e.RequesterID,
			Reference:   string(e.OrderID),
			Data:        map[string]any{"order_id": e.OrderID, "booking_id": e.BookingID, "gateway_status": e.GatewayStatus},
		}}, nil
	default:
		return nil, nil
	}
}

func decode(ev Event, out any) error {
	if err := json.Unmarshal(ev.Data, out); err != nil {
		return fmt.Errorf("notifications: decode %s: %w", ev.Name, err)
	}
	return nil
}
