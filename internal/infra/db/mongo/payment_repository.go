package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "roomstay/internal/domain/booking"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

const activePaymentIndex = "uniq_active_booking"

type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection("agg_payment")}
}

// ensurePaymentIndexes enforces one active payment per booking. The field is
// absent on failed payments, so the sparse index ignores them.
func ensurePaymentIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("agg_payment").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "active_booking_id", Value: 1}},
			Options: options.Index().SetName(activePaymentIndex).SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *PaymentRepository) ByOrderID(ctx context.Context, id domainpayment.OrderID) (*domainpayment.Payment, error) {
	var doc paymentDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpayment.ErrPaymentNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PaymentRepository) Exists(ctx context.Context, id domainpayment.OrderID) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PaymentRepository) LatestForBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainpayment.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	var doc paymentDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": string(bookingID)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpayment.ErrPaymentNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	doc := newPaymentDocument(p)
	doc.Version = p.Version + 1
	if p.Version == 0 {
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			return r.translateWriteErr(err)
		}
		p.Version = doc.Version
		return nil
	}

	filter := bson.M{"_id": doc.ID, "version": p.Version}
	res, err := r.col.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return r.translateWriteErr(err)
	}
	if res.MatchedCount == 0 {
		exists, err := r.Exists(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return domainpayment.ErrPaymentNotFound
		}
		return errs.ErrConcurrentUpdate
	}
	p.Version = doc.Version
	return nil
}

func (r *PaymentRepository) translateWriteErr(err error) error {
	switch {
	case duplicateOn(err, activePaymentIndex):
		return domainpayment.ErrPaymentInProgress.WithCause(err)
	case mongo.IsDuplicateKeyError(err):
		return errs.ErrConcurrentUpdate.WithCause(err)
	default:
		return translateTxnErr(err)
	}
}

func (r *PaymentRepository) DeleteByBooking(ctx context.Context, bookingID domainbooking.BookingID) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"booking_id": string(bookingID)})
	return err
}

type paymentDocument struct {
	ID              string      `bson:"_id"`
	BookingID       string      `bson:"booking_id"`
	ActiveBookingID string      `bson:"active_booking_id,omitempty"`
	RequesterID     string      `bson:"requester_id"`
	Amount          money.Money `bson:"amount"`
	Status          string      `bson:"status"`
	GatewayStatus   string      `bson:"gateway_status,omitempty"`
	FraudStatus     string      `bson:"fraud_status,omitempty"`
	TransactionID   string      `bson:"gateway_transaction_id,omitempty"`
	PaymentMethod   string      `bson:"payment_method,omitempty"`
	TransactionTime *int64      `bson:"transaction_time,omitempty"`
	SettlementTime  *int64      `bson:"settlement_time,omitempty"`
	SnapToken       string      `bson:"snap_token"`
	RedirectURL     string      `bson:"redirect_url"`
	RawPayload      []byte      `bson:"raw_payload,omitempty"`
	CreatedAt       int64       `bson:"created_at"`
	UpdatedAt       int64       `bson:"updated_at"`
	Version         int64       `bson:"version"`
}

func newPaymentDocument(p *domainpayment.Payment) paymentDocument {
	return paymentDocument{
		ID:              string(p.OrderID),
		BookingID:       string(p.BookingID),
		ActiveBookingID: p.ActiveBookingID(),
		RequesterID:     p.RequesterID,
		Amount:          p.Amount,
		Status:          string(p.Status),
		GatewayStatus:   p.GatewayStatus,
		FraudStatus:     p.FraudStatus,
		TransactionID:   p.TransactionID,
		PaymentMethod:   p.PaymentMethod,
		TransactionTime: optionalMillis(p.TransactionTime),
		SettlementTime:  optionalMillis(p.SettlementTime),
		SnapToken:       p.SnapToken,
		RedirectURL:     p.RedirectURL,
		RawPayload:      p.RawPayload,
		CreatedAt:       p.CreatedAt.UnixMilli(),
		UpdatedAt:       p.UpdatedAt.UnixMilli(),
		Version:         p.Version,
	}
}

func (d paymentDocument) toAggregate() *domainpayment.Payment {
	return &domainpayment.Payment{
		OrderID:         domainpayment.OrderID(d.ID),
		BookingID:       domainbooking.BookingID(d.BookingID),
		RequesterID:     d.RequesterID,
		Amount:          d.Amount,
		Status:          domainpayment.Status(d.Status),
		GatewayStatus:   d.GatewayStatus,
		FraudStatus:     d.FraudStatus,
		TransactionID:   d.TransactionID,
		PaymentMethod:   d.PaymentMethod,
		TransactionTime: optionalTime(d.TransactionTime),
		SettlementTime:  optionalTime(d.SettlementTime),
		SnapToken:       d.SnapToken,
		RedirectURL:     d.RedirectURL,
		RawPayload:      d.RawPayload,
		CreatedAt:       timestampToTime(d.CreatedAt),
		UpdatedAt:       timestampToTime(d.UpdatedAt),
		Version:         d.Version,
	}
}

var _ domainpayment.Repository = (*PaymentRepository)(nil)
