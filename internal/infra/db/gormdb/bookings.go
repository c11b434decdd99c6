package gormdb

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domainbooking "roomstay/internal/domain/booking"
	domainlistings "roomstay/internal/domain/listings"
	domainpricing "roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var m bookingModel
	if err := conn(ctx, r.db).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return m.toAggregate(), nil
}

func (r *BookingRepository) Exists(ctx context.Context, id domainbooking.BookingID) (bool, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&bookingModel{}).Where("id = ?", string(id)).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := writable(ctx); err != nil {
		return err
	}
	m := newBookingModel(b)
	m.Version = b.Version + 1
	db := conn(ctx, r.db)
	if b.Version == 0 {
		if err := db.Create(&m).Error; err != nil {
			if uniqueViolation(err) {
				return errs.ErrConcurrentUpdate.WithCause(err)
			}
			return translate(err)
		}
		b.Version = m.Version
		return nil
	}
	res := db.Model(&bookingModel{}).
		Where("id = ? AND version = ?", m.ID, b.Version).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		exists, err := r.Exists(ctx, b.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domainbooking.ErrBookingNotFound
		}
		return errs.ErrConcurrentUpdate
	}
	b.Version = m.Version
	return nil
}

func (r *BookingRepository) Delete(ctx context.Context, id domainbooking.BookingID) error {
	if err := writable(ctx); err != nil {
		return err
	}
	res := conn(ctx, r.db).Delete(&bookingModel{}, "id = ?", string(id))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domainbooking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, "requester_id = ?", requesterID)
}

func (r *BookingRepository) ListByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*domainbooking.Booking, error) {
	return r.find(ctx, "listing_id = ?", string(listingID))
}

func (r *BookingRepository) find(ctx context.Context, query string, arg any) ([]*domainbooking.Booking, error) {
	var rows []bookingModel
	if err := conn(ctx, r.db).Where(query, arg).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domainbooking.Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toAggregate())
	}
	return out, nil
}

func newBookingModel(b *domainbooking.Booking) bookingModel {
	return bookingModel{
		ID:              string(b.ID),
		ListingID:       string(b.ListingID),
		OwnerID:         b.OwnerID,
		RequesterID:     b.RequesterID,
		CheckIn:         b.Stay.CheckIn.UTC(),
		CheckOut:        b.Stay.CheckOut.UTC(),
		DurationUnit:    string(b.Unit),
		DurationCount:   b.Count,
		PerPeriodAmount: b.PerPeriod.Amount,
		TotalAmount:     b.Total.Amount,
		Currency:        b.Total.Currency,
		GuestName:       b.Guest.Name,
		GuestPhone:      b.Guest.Phone,
		GuestEmail:      b.Guest.Email,
		GuestIDDocument: b.Guest.IDDocument,
		Notes:           b.Notes,
		State:           string(b.State),
		CancelReason:    b.CancelReason,
		CancelledBy:     string(b.CancelledBy),
		CancelledAt:     optionalUTC(b.CancelledAt),
		ConfirmedAt:     optionalUTC(b.ConfirmedAt),
		CheckedInAt:     optionalUTC(b.CheckedInAt),
		CheckedOutAt:    optionalUTC(b.CheckedOutAt),
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
		Version:         b.Version,
	}
}

func (m bookingModel) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:          domainbooking.BookingID(m.ID),
		ListingID:   domainlistings.ListingID(m.ListingID),
		OwnerID:     m.OwnerID,
		RequesterID: m.RequesterID,
		Stay:        daterange.DateRange{CheckIn: m.CheckIn.UTC(), CheckOut: m.CheckOut.UTC()},
		Unit:        domainpricing.DurationUnit(m.DurationUnit),
		Count:       m.DurationCount,
		PerPeriod:   money.Money{Amount: m.PerPeriodAmount, Currency: m.Currency},
		Total:       money.Money{Amount: m.TotalAmount, Currency: m.Currency},
		Guest: domainbooking.Guest{
			Name:       m.GuestName,
			Phone:      m.GuestPhone,
			Email:      m.GuestEmail,
			IDDocument: m.GuestIDDocument,
		},
		Notes:        m.Notes,
		State:        domainbooking.State(m.State),
		CancelReason: m.CancelReason,
		CancelledBy:  domainbooking.Actor(m.CancelledBy),
		CancelledAt:  optionalUTC(m.CancelledAt),
		ConfirmedAt:  optionalUTC(m.ConfirmedAt),
		CheckedInAt:  optionalUTC(m.CheckedInAt),
		CheckedOutAt: optionalUTC(m.CheckedOutAt),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		Version:      m.Version,
	}
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
