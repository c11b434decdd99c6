package gormdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
)

// ListingRepository also serves as the inventory ledger. Each ledger call is a
// single guarded UPDATE, so the database row lock serialises concurrent
// reservations on one listing.
type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var m listingModel
	if err := conn(ctx, r.db).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, err
	}
	return m.toAggregate(), nil
}

func (r *ListingRepository) Create(ctx context.Context, listing *domainlistings.Listing) error {
	if err := writable(ctx); err != nil {
		return err
	}
	m := newListingModel(listing)
	if err := conn(ctx, r.db).Create(&m).Error; err != nil {
		if uniqueViolation(err) {
			return domainlistings.ErrListingExists.WithCause(err)
		}
		return translate(err)
	}
	return nil
}

func (r *ListingRepository) ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	var rows []listingModel
	if err := conn(ctx, r.db).Where("owner_id = ?", string(owner)).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domainlistings.Listing, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toAggregate())
	}
	return out, nil
}

func (r *ListingRepository) Reserve(ctx context.Context, id domainlistings.ListingID) error {
	return r.adjust(ctx, id, "available_rooms > 0", "available_rooms - 1", inventory.ErrNoRoomsAvailable)
}

func (r *ListingRepository) Release(ctx context.Context, id domainlistings.ListingID) error {
	return r.adjust(ctx, id, "available_rooms < total_rooms", "available_rooms + 1", inventory.ErrAtCapacity)
}

func (r *ListingRepository) adjust(ctx context.Context, id domainlistings.ListingID, guard, expr string, guardErr error) error {
	if err := writable(ctx); err != nil {
		return err
	}
	db := conn(ctx, r.db)
	res := db.Model(&listingModel{}).
		Where("id = ? AND "+guard, string(id)).
		Updates(map[string]any{
			"available_rooms": gorm.Expr(expr),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := db.Model(&listingModel{}).Where("id = ?", string(id)).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domainlistings.ErrListingNotFound
	}
	return guardErr
}

func newListingModel(l *domainlistings.Listing) listingModel {
	return listingModel{
		ID:             string(l.ID),
		OwnerID:        string(l.Owner),
		Title:          l.Title,
		City:           l.City,
		State:          string(l.State),
		TotalRooms:     l.TotalRooms,
		AvailableRooms: l.AvailableRooms,
		Rates:          datatypes.NewJSONType(l.Rates.Clone()),
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.UpdatedAt.UTC(),
	}
}

func (m listingModel) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:             domainlistings.ListingID(m.ID),
		Owner:          domainlistings.OwnerID(m.OwnerID),
		Title:          m.Title,
		City:           m.City,
		State:          domainlistings.ListingState(m.State),
		TotalRooms:     m.TotalRooms,
		AvailableRooms: m.AvailableRooms,
		Rates:          m.Rates.Data(),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

var (
	_ domainlistings.Repository = (*ListingRepository)(nil)
	_ inventory.Ledger          = (*ListingRepository)(nil)
)
