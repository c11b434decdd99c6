package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "roomstay/internal/domain/booking"
	domainlistings "roomstay/internal/domain/listings"
	domainpricing "roomstay/internal/domain/pricing"
	domainrange "roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("agg_booking")}
}

func ensureBookingIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("agg_booking").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Exists(ctx context.Context, id domainbooking.BookingID) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	if b.Version == 0 {
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errs.ErrConcurrentUpdate.WithCause(err)
			}
			return translateTxnErr(err)
		}
		b.Version = doc.Version
		return nil
	}
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	res, err := r.col.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return translateTxnErr(err)
	}
	if res.MatchedCount == 0 {
		exists, err := r.Exists(ctx, b.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domainbooking.ErrBookingNotFound
		}
		return errs.ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) Delete(ctx context.Context, id domainbooking.BookingID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return translateTxnErr(err)
	}
	if res.DeletedCount == 0 {
		return domainbooking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"requester_id": requesterID})
}

func (r *BookingRepository) ListByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"listing_id": string(listingID)})
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainbooking.Booking, 0)
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

type bookingDocument struct {
	ID           string        `bson:"_id"`
	ListingID    string        `bson:"listing_id"`
	OwnerID      string        `bson:"owner_id"`
	RequesterID  string        `bson:"requester_id"`
	Range        rangeDocument `bson:"range"`
	Unit         string        `bson:"duration_unit"`
	Count        int           `bson:"duration_count"`
	PerPeriod    money.Money   `bson:"per_period_price"`
	Total        money.Money   `bson:"total_price"`
	Guest        guestDocument `bson:"guest"`
	Notes        string        `bson:"notes,omitempty"`
	State        string        `bson:"state"`
	CancelReason string        `bson:"cancel_reason,omitempty"`
	CancelledBy  string        `bson:"cancelled_by,omitempty"`
	CancelledAt  *int64        `bson:"cancelled_at,omitempty"`
	ConfirmedAt  *int64        `bson:"confirmed_at,omitempty"`
	CheckedInAt  *int64        `bson:"checked_in_at,omitempty"`
	CheckedOutAt *int64        `bson:"checked_out_at,omitempty"`
	CreatedAt    int64         `bson:"created_at"`
	UpdatedAt    int64         `bson:"updated_at"`
	Version      int64         `bson:"version"`
}

type rangeDocument struct {
	CheckIn  int64 `bson:"check_in"`
	CheckOut int64 `bson:"check_out"`
}

type guestDocument struct {
	Name       string `bson:"name"`
	Phone      string `bson:"phone,omitempty"`
	Email      string `bson:"email,omitempty"`
	IDDocument string `bson:"id_document,omitempty"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:          string(b.ID),
		ListingID:   string(b.ListingID),
		OwnerID:     b.OwnerID,
		RequesterID: b.RequesterID,
		Range:       rangeDocument{CheckIn: b.Stay.CheckIn.UnixMilli(), CheckOut: b.Stay.CheckOut.UnixMilli()},
		Unit:        string(b.Unit),
		Count:       b.Count,
		PerPeriod:   b.PerPeriod,
		Total:       b.Total,
		Guest: guestDocument{
			Name:       b.Guest.Name,
			Phone:      b.Guest.Phone,
			Email:      b.Guest.Email,
			IDDocument: b.Guest.IDDocument,
		},
		Notes:        b.Notes,
		State:        string(b.State),
		CancelReason: b.CancelReason,
		CancelledBy:  string(b.CancelledBy),
		CancelledAt:  optionalMillis(b.CancelledAt),
		ConfirmedAt:  optionalMillis(b.ConfirmedAt),
		CheckedInAt:  optionalMillis(b.CheckedInAt),
		CheckedOutAt: optionalMillis(b.CheckedOutAt),
		CreatedAt:    b.CreatedAt.UnixMilli(),
		UpdatedAt:    b.UpdatedAt.UnixMilli(),
		Version:      b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:          domainbooking.BookingID(d.ID),
		ListingID:   domainlistings.ListingID(d.ListingID),
		OwnerID:     d.OwnerID,
		RequesterID: d.RequesterID,
		Stay:        domainrange.DateRange{CheckIn: timestampToTime(d.Range.CheckIn), CheckOut: timestampToTime(d.Range.CheckOut)},
		Unit:        domainpricing.DurationUnit(d.Unit),
		Count:       d.Count,
		PerPeriod:   d.PerPeriod,
		Total:       d.Total,
		Guest: domainbooking.Guest{
			Name:       d.Guest.Name,
			Phone:      d.Guest.Phone,
			Email:      d.Guest.Email,
			IDDocument: d.Guest.IDDocument,
		},
		Notes:        d.Notes,
		State:        domainbooking.State(d.State),
		CancelReason: d.CancelReason,
		CancelledBy:  domainbooking.Actor(d.CancelledBy),
		CancelledAt:  optionalTime(d.CancelledAt),
		ConfirmedAt:  optionalTime(d.ConfirmedAt),
		CheckedInAt:  optionalTime(d.CheckedInAt),
		CheckedOutAt: optionalTime(d.CheckedOutAt),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
