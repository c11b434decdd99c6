package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpricing "roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/money"
)

// ListingRepository stores listings and implements the inventory ledger
// with single conditional updates on available_rooms.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("agg_listing")}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) Create(ctx context.Context, listing *domainlistings.Listing) error {
	_, err := r.col.InsertOne(ctx, newListingDocument(listing))
	if mongo.IsDuplicateKeyError(err) {
		return domainlistings.ErrListingExists
	}
	return err
}

func (r *ListingRepository) ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	cur, err := r.col.Find(ctx, bson.M{"owner_id": string(owner)}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainlistings.Listing, 0)
	for cur.Next(ctx) {
		var doc listingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func (r *ListingRepository) Reserve(ctx context.Context, id domainlistings.ListingID) error {
	filter := bson.M{"_id": string(id), "available_rooms": bson.M{"$gt": 0}}
	return r.adjust(ctx, id, filter, -1, inventory.ErrNoRoomsAvailable)
}

func (r *ListingRepository) Release(ctx context.Context, id domainlistings.ListingID) error {
	filter := bson.M{
		"_id":   string(id),
		"$expr": bson.M{"$lt": bson.A{"$available_rooms", "$total_rooms"}},
	}
	return r.adjust(ctx, id, filter, 1, inventory.ErrAtCapacity)
}

func (r *ListingRepository) adjust(ctx context.Context, id domainlistings.ListingID, filter bson.M, delta int, guardErr error) error {
	update := bson.M{
		"$inc": bson.M{"available_rooms": delta},
		"$set": bson.M{"updated_at": time.Now().UTC().UnixMilli()},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return translateTxnErr(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return domainlistings.ErrListingNotFound
	}
	return guardErr
}

type listingDocument struct {
	ID             string        `bson:"_id"`
	OwnerID        string        `bson:"owner_id"`
	Title          string        `bson:"title"`
	City           string        `bson:"city"`
	State          string        `bson:"state"`
	TotalRooms     int           `bson:"total_rooms"`
	AvailableRooms int           `bson:"available_rooms"`
	Rates          ratesDocument `bson:"rates"`
	CreatedAt      int64         `bson:"created_at"`
	UpdatedAt      int64         `bson:"updated_at"`
}

type ratesDocument struct {
	Weekly       *money.Money `bson:"weekly,omitempty"`
	Monthly      money.Money  `bson:"monthly"`
	Yearly       *money.Money `bson:"yearly,omitempty"`
	OffersWeekly bool         `bson:"offers_weekly"`
	OffersYearly bool         `bson:"offers_yearly"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:             string(l.ID),
		OwnerID:        string(l.Owner),
		Title:          l.Title,
		City:           l.City,
		State:          string(l.State),
		TotalRooms:     l.TotalRooms,
		AvailableRooms: l.AvailableRooms,
		Rates: ratesDocument{
			Weekly:       l.Rates.Weekly,
			Monthly:      l.Rates.Monthly,
			Yearly:       l.Rates.Yearly,
			OffersWeekly: l.Rates.OffersWeekly,
			OffersYearly: l.Rates.OffersYearly,
		},
		CreatedAt: l.CreatedAt.UnixMilli(),
		UpdatedAt: l.UpdatedAt.UnixMilli(),
	}
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:             domainlistings.ListingID(d.ID),
		Owner:          domainlistings.OwnerID(d.OwnerID),
		Title:          d.Title,
		City:           d.City,
		State:          domainlistings.ListingState(d.State),
		TotalRooms:     d.TotalRooms,
		AvailableRooms: d.AvailableRooms,
		Rates: domainpricing.RateTable{
			Weekly:       d.Rates.Weekly,
			Monthly:      d.Rates.Monthly,
			Yearly:       d.Rates.Yearly,
			OffersWeekly: d.Rates.OffersWeekly,
			OffersYearly: d.Rates.OffersYearly,
		},
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
var _ inventory.Ledger = (*ListingRepository)(nil)
