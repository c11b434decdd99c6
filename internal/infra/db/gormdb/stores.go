package gormdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roomstay/internal/app/middleware"
	appoutbox "roomstay/internal/app/outbox"
	infraoutbox "roomstay/internal/infra/outbox"
)

const (
	outboxNew     = "NEW"
	outboxClaimed = "CLAIMED"
	outboxSent    = "SENT"
	outboxFailed  = "FAILED"
)

// OutboxStore writes records in the caller's transaction and hands them to
// the relay worker once committed.
type OutboxStore struct {
	db *gorm.DB
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	now := time.Now().UTC()
	headers := record.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	m := outboxModel{
		ID:            record.ID,
		Name:          record.Name,
		Aggregate:     record.Aggregate,
		Payload:       record.Payload,
		Headers:       datatypes.NewJSONType(headers),
		OccurredAt:    record.OccurredAt.UTC(),
		State:         outboxNew,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	return translate(conn(ctx, s.db).Create(&m).Error)
}

// Flush is a no-op: the relay worker polls the table.
func (s *OutboxStore) Flush(context.Context) error {
	return nil
}

// Claim picks the oldest due record and takes it with a state-guarded
// UPDATE. Losing the race to another worker yields no record.
func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)
	var m outboxModel
	err := db.
		Where("(state IN ? AND next_attempt_at <= ?) OR (state = ? AND claimed_at <= ?)",
			[]string{outboxNew, outboxFailed}, now, outboxClaimed, now.Add(-infraoutbox.ClaimLease)).
		Order("created_at").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	res := db.Model(&outboxModel{}).
		Where("id = ? AND state = ? AND attempts = ?", m.ID, m.State, m.Attempts).
		Updates(map[string]any{"state": outboxClaimed, "claimed_by": workerID, "claimed_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &infraoutbox.Record{
		ID:         m.ID,
		Name:       m.Name,
		Payload:    m.Payload,
		OccurredAt: m.OccurredAt.UTC(),
		Aggregate:  m.Aggregate,
		Headers:    m.Headers.Data(),
		Attempts:   m.Attempts,
	}, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&outboxModel{}).Where("id = ?", id).
		Updates(map[string]any{"state": outboxSent, "sent_at": now}).Error
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return s.db.WithContext(ctx).Model(&outboxModel{}).Where("id = ?", id).
		Updates(map[string]any{
			"state":           outboxFailed,
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
			"attempts":        gorm.Expr("attempts + 1"),
		}).Error
}

type IdempotencyStore struct {
	db *gorm.DB
}

func NewIdempotencyStore(db *gorm.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var m idempotencyModel
	if err := s.db.WithContext(ctx).Take(&m, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{
		Key:          m.Key,
		Payload:      m.Payload,
		ErrorKind:    m.ErrorKind,
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		OccurredAt:   m.OccurredAt.UTC(),
	}, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	m := idempotencyModel{
		Key:          rec.Key,
		Payload:      rec.Payload,
		ErrorKind:    rec.ErrorKind,
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
		OccurredAt:   rec.OccurredAt.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

// InboxStore de-duplicates relayed events per consumer.
type InboxStore struct {
	db       *gorm.DB
	consumer string
}

func NewInboxStore(db *gorm.DB, consumer string) *InboxStore {
	return &InboxStore{db: db, consumer: consumer}
}

func (s *InboxStore) Seen(ctx context.Context, eventID string) (bool, error) {
	m := inboxModel{EventID: eventID, Consumer: s.consumer, ReceivedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

var (
	_ appoutbox.Outbox            = (*OutboxStore)(nil)
	_ infraoutbox.Store           = (*OutboxStore)(nil)
	_ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
)
