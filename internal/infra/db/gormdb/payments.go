package gormdb

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domainbooking "roomstay/internal/domain/booking"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

const activePaymentIndex = "uniq_active_booking"

// PaymentRepository keeps active_booking_id NULL for failed payments so the
// unique index admits one active payment per booking.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) ByOrderID(ctx context.Context, id domainpayment.OrderID) (*domainpayment.Payment, error) {
	var m paymentModel
	if err := conn(ctx, r.db).First(&m, "order_id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainpayment.ErrPaymentNotFound
		}
		return nil, err
	}
	return m.toAggregate(), nil
}

func (r *PaymentRepository) Exists(ctx context.Context, id domainpayment.OrderID) (bool, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&paymentModel{}).Where("order_id = ?", string(id)).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PaymentRepository) LatestForBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainpayment.Payment, error) {
	var m paymentModel
	err := conn(ctx, r.db).
		Where("booking_id = ?", string(bookingID)).
		Order("created_at DESC, order_id DESC").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainpayment.ErrPaymentNotFound
		}
		return nil, err
	}
	return m.toAggregate(), nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	if err := writable(ctx); err != nil {
		return err
	}
	m := newPaymentModel(p)
	m.Version = p.Version + 1
	db := conn(ctx, r.db)
	if p.Version == 0 {
		if err := db.Create(&m).Error; err != nil {
			return translateWriteErr(err)
		}
		p.Version = m.Version
		return nil
	}
	res := db.Model(&paymentModel{}).
		Where("order_id = ? AND version = ?", m.OrderID, p.Version).
		Select("*").Omit("order_id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return translateWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		exists, err := r.Exists(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return domainpayment.ErrPaymentNotFound
		}
		return errs.ErrConcurrentUpdate
	}
	p.Version = m.Version
	return nil
}

func (r *PaymentRepository) DeleteByBooking(ctx context.Context, bookingID domainbooking.BookingID) error {
	if err := writable(ctx); err != nil {
		return err
	}
	return translate(conn(ctx, r.db).Delete(&paymentModel{}, "booking_id = ?", string(bookingID)).Error)
}

func translateWriteErr(err error) error {
	switch {
	case uniqueViolation(err, activePaymentIndex, "active_booking_id"):
		return domainpayment.ErrPaymentInProgress.WithCause(err)
	case uniqueViolation(err):
		return errs.ErrConcurrentUpdate.WithCause(err)
	default:
		return translate(err)
	}
}

func newPaymentModel(p *domainpayment.Payment) paymentModel {
	var active *string
	if id := p.ActiveBookingID(); id != "" {
		active = &id
	}
	var raw datatypes.JSON
	if len(p.RawPayload) > 0 {
		raw = datatypes.JSON(append([]byte(nil), p.RawPayload...))
	}
	return paymentModel{
		OrderID:         string(p.OrderID),
		BookingID:       string(p.BookingID),
		ActiveBookingID: active,
		RequesterID:     p.RequesterID,
		Amount:          p.Amount.Amount,
		Currency:        p.Amount.Currency,
		Status:          string(p.Status),
		GatewayStatus:   p.GatewayStatus,
		FraudStatus:     p.FraudStatus,
		TransactionID:   p.TransactionID,
		PaymentMethod:   p.PaymentMethod,
		TransactionTime: optionalUTC(p.TransactionTime),
		SettlementTime:  optionalUTC(p.SettlementTime),
		SnapToken:       p.SnapToken,
		RedirectURL:     p.RedirectURL,
		RawPayload:      raw,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
		Version:         p.Version,
	}
}

func (m paymentModel) toAggregate() *domainpayment.Payment {
	var raw []byte
	if len(m.RawPayload) > 0 {
		raw = append([]byte(nil), m.RawPayload...)
	}
	return &domainpayment.Payment{
		OrderID:         domainpayment.OrderID(m.OrderID),
		BookingID:       domainbooking.BookingID(m.BookingID),
		RequesterID:     m.RequesterID,
		Amount:          money.Money{Amount: m.Amount, Currency: m.Currency},
		Status:          domainpayment.Status(m.Status),
		GatewayStatus:   m.GatewayStatus,
		FraudStatus:     m.FraudStatus,
		TransactionID:   m.TransactionID,
		PaymentMethod:   m.PaymentMethod,
		TransactionTime: optionalUTC(m.TransactionTime),
		SettlementTime:  optionalUTC(m.SettlementTime),
		SnapToken:       m.SnapToken,
		RedirectURL:     m.RedirectURL,
		RawPayload:      raw,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		Version:         m.Version,
	}
}

var _ domainpayment.Repository = (*PaymentRepository)(nil)
