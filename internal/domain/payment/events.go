package payment

import (
	"time"

	"roomstay/internal/domain/booking"
	"roomstay/internal/domain/shared/money"
)

const (
	EventInitiated = "payment.initiated"
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
)

type PaymentInitiated struct {
	OrderID   OrderID           `json:"order_id"`
	BookingID booking.BookingID `json:"booking_id"`
	Amount    money.Money       `json:"amount"`
	At        time.Time         `json:"at"`
}

func (e PaymentInitiated) EventName() string     { return EventInitiated }
func (e PaymentInitiated) AggregateID() string   { return string(e.BookingID) }
func (e PaymentInitiated) OccurredAt() time.Time { return e.At }

type PaymentSucceeded struct {
	OrderID     OrderID           `json:"order_id"`
	BookingID   booking.BookingID `json:"booking_id"`
	RequesterID string            `json:"requester_id"`
	Amount      money.Money       `json:"amount"`
	Method      string            `json:"method,omitempty"`
	At          time.Time         `json:"at"`
}

func (e PaymentSucceeded) EventName() string     { return EventSucceeded }
func (e PaymentSucceeded) AggregateID() string   { return string(e.BookingID) }
func (e PaymentSucceeded) OccurredAt() time.Time { return e.At }

type PaymentFailed struct {
	OrderID       OrderID           `json:"order_id"`
	BookingID     booking.BookingID `json:"booking_id"`
	RequesterID   string            `json:"requester_id"`
	GatewayStatus string            `json:"gateway_status"`
	At            time.Time         `json:"at"`
}

func (e PaymentFailed) EventName() string     { return EventFailed }
func (e PaymentFailed) AggregateID() string   { return string(e.BookingID) }
func (e PaymentFailed) OccurredAt() time.Time { return e.At }
