package payment

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"roomstay/internal/domain/booking"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/events"
	"roomstay/internal/domain/shared/money"
)

var (
	ErrPaymentNotFound   = errs.NotFound("payment_not_found", "payment: not found")
	ErrAlreadyPaid       = errs.Conflict("already_paid", "payment: booking already paid")
	ErrPaymentInProgress = errs.Conflict("payment_in_progress", "payment: another payment for this booking is active")
	ErrBookingNotPayable = errs.Conflict("invalid_transition", "payment: only pending bookings can be paid")
	ErrAmountRequired    = errs.Validation("amount_required", "payment: amount must be positive")
	ErrTokenRequired     = errs.Upstream("gateway_token_missing", "payment: gateway returned no token", nil)
)

type OrderID string

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Payment is one gateway transaction for a booking.
type Payment struct {
	OrderID         OrderID
	BookingID       booking.BookingID
	RequesterID     string
	Amount          money.Money
	Status          Status
	GatewayStatus   string
	FraudStatus     string
	TransactionID   string
	PaymentMethod   string
	TransactionTime *time.Time
	SettlementTime  *time.Time
	SnapToken       string
	RedirectURL     string
	RawPayload      []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
	events.EventRecorder
}

type Repository interface {
	ByOrderID(ctx context.Context, id OrderID) (*Payment, error)
	Exists(ctx context.Context, id OrderID) (bool, error)
	// LatestForBooking returns the most recently created payment or ErrPaymentNotFound.
	LatestForBooking(ctx context.Context, bookingID booking.BookingID) (*Payment, error)
	// Save inserts when Version is zero and updates with a version check
	// otherwise. A second active payment for a booking fails with
	// ErrPaymentInProgress.
	Save(ctx context.Context, p *Payment) error
	DeleteByBooking(ctx context.Context, bookingID booking.BookingID) error
}

type CreateParams struct {
	OrderID     OrderID
	Booking     *booking.Booking
	SnapToken   string
	RedirectURL string
	Now         time.Time
}

// NewPayment records a gateway-confirmed transaction. The charge always
// equals the booking's stored total.
func NewPayment(params CreateParams) (*Payment, error) {
	if !params.Booking.Total.IsPositive() {
		return nil, ErrAmountRequired
	}
	if strings.TrimSpace(params.SnapToken) == "" {
		return nil, ErrTokenRequired
	}
	now := params.Now.UTC()
	p := &Payment{
		OrderID:     params.OrderID,
		BookingID:   params.Booking.ID,
		RequesterID: params.Booking.RequesterID,
		Amount:      params.Booking.Total,
		Status:      StatusPending,
		SnapToken:   params.SnapToken,
		RedirectURL: params.RedirectURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Record(PaymentInitiated{OrderID: p.OrderID, BookingID: p.BookingID, Amount: p.Amount, At: now})
	return p, nil
}

// Active payments block a new payment for the same booking.
func (p *Payment) Active() bool {
	return p.Status == StatusPending || p.Status == StatusSuccess
}

// ActiveBookingID is the value stores index uniquely; empty once failed.
func (p *Payment) ActiveBookingID() string {
	if p.Active() {
		return string(p.BookingID)
	}
	return ""
}

// Reusable reports whether initiate may hand this payment back unchanged.
func (p *Payment) Reusable() bool {
	return p.Status == StatusPending && p.SnapToken != ""
}

// MatchesGrossAmount compares a gateway amount string ("1500000.00") with the charge.
func (p *Payment) MatchesGrossAmount(raw string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return false
	}
	return int64(math.Round(v)) == p.Amount.Amount
}

// Outcome describes what applying a report did to the status.
type Outcome struct {
	Previous Status
	Current  Status
	Reported Status
}

func (o Outcome) Changed() bool {
	return o.Previous != o.Current
}

// Suppressed is true when the report asked for a different status that the
// stickiness rules refused.
func (o Outcome) Suppressed() bool {
	return o.Reported != o.Current
}

func (o Outcome) BecameSuccess() bool {
	return o.Changed() && o.Current == StatusSuccess
}

func (o Outcome) BecameFailed() bool {
	return o.Changed() && o.Current == StatusFailed
}

// Apply folds a gateway report into the payment. Audit fields always take the
// latest report; the status only moves out of pending, never back.
func (p *Payment) Apply(r Report, now time.Time) Outcome {
	reported := MapStatus(r.TransactionStatus, r.FraudStatus)
	out := Outcome{Previous: p.Status, Current: p.Status, Reported: reported}

	if len(r.Raw) > 0 {
		p.RawPayload = append([]byte(nil), r.Raw...)
	}
	p.GatewayStatus = strings.ToLower(strings.TrimSpace(r.TransactionStatus))
	if v := strings.TrimSpace(r.FraudStatus); v != "" {
		p.FraudStatus = strings.ToLower(v)
	}
	if v := strings.TrimSpace(r.TransactionID); v != "" {
		p.TransactionID = v
	}
	if v := strings.TrimSpace(r.PaymentType); v != "" {
		p.PaymentMethod = v
	}
	if r.TransactionTime != nil {
		t := r.TransactionTime.UTC()
		p.TransactionTime = &t
	}
	if r.SettlementTime != nil {
		t := r.SettlementTime.UTC()
		p.SettlementTime = &t
	}
	at := now.UTC()
	p.UpdatedAt = at

	if p.Status != StatusPending || reported == StatusPending {
		return out
	}
	p.Status = reported
	out.Current = reported
	switch reported {
	case StatusSuccess:
		p.Record(PaymentSucceeded{OrderID: p.OrderID, BookingID: p.BookingID, RequesterID: p.RequesterID, Amount: p.Amount, Method: p.PaymentMethod, At: at})
	case StatusFailed:
		p.Record(PaymentFailed{OrderID: p.OrderID, BookingID: p.BookingID, RequesterID: p.RequesterID, GatewayStatus: p.GatewayStatus, At: at})
	}
	return out
}

func (p *Payment) Clone() *Payment {
	cp := *p
	cp.EventRecorder = events.EventRecorder{}
	cp.RawPayload = append([]byte(nil), p.RawPayload...)
	if p.TransactionTime != nil {
		t := *p.TransactionTime
		cp.TransactionTime = &t
	}
	if p.SettlementTime != nil {
		t := *p.SettlementTime
		cp.SettlementTime = &t
	}
	return &cp
}
