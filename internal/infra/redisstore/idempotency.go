package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"roomstay/internal/app/middleware"
)

const DefaultIdempotencyTTL = 7 * 24 * time.Hour

type IdempotencyStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, prefix string, ttl time.Duration) *IdempotencyStore {
	if prefix == "" {
		prefix = "idem"
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

type idempotencyEntry struct {
	Payload      []byte    `json:"payload,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{
		Key:          key,
		Payload:      entry.Payload,
		ErrorKind:    entry.ErrorKind,
		ErrorCode:    entry.ErrorCode,
		ErrorMessage: entry.ErrorMessage,
		OccurredAt:   entry.OccurredAt,
	}, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	raw, err := json.Marshal(idempotencyEntry{
		Payload:      rec.Payload,
		ErrorKind:    rec.ErrorKind,
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
		OccurredAt:   rec.OccurredAt,
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(rec.Key), raw, s.ttl).Err()
}

func (s *IdempotencyStore) key(k string) string {
	return s.prefix + ":" + k
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
