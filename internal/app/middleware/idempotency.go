package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"roomstay/internal/app/commands"
	"roomstay/internal/domain/shared/errs"
)

// IdempotentCommand must be implemented by commands that want idempotency guarantees.
type IdempotentCommand interface {
	commands.Command
	// IdempotencyKey is the client-supplied key; empty disables replay.
	IdempotencyKey() string
	// IdempotencyScope separates keys of different callers.
	IdempotencyScope() string
	ResultPrototype() any // should match the handler result type
}

type IdempotencyRecord struct {
	Key          string
	Payload      []byte
	ErrorKind    string
	ErrorCode    string
	ErrorMessage string
	OccurredAt   time.Time
}

// Failed reports whether the record replays an error.
func (r IdempotencyRecord) Failed() bool {
	return r.ErrorCode != ""
}

func (r IdempotencyRecord) Err() error {
	return errs.New(errs.Kind(r.ErrorKind), r.ErrorCode, r.ErrorMessage)
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var (
	errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")
)

// Idempotency replays stored outcomes for repeated keys. Only results and
// deterministic failures are stored; upstream and internal errors leave the
// key free so the client can retry.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok {
				return nextFn(ctx, cmd)
			}
			if idCmd.IdempotencyKey() == "" {
				return nextFn(ctx, cmd)
			}
			key := ScopedKey(idCmd)
			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found {
				if rec.Failed() {
					return nil, rec.Err()
				}
				proto := idCmd.ResultPrototype()
				if proto == nil {
					return nil, errMissingPrototype
				}
				if err := codec.Decode(rec.Payload, proto); err != nil {
					return nil, err
				}
				return normalizePrototype(proto), nil
			}
			result, err := nextFn(ctx, cmd)
			record := IdempotencyRecord{
				Key:        key,
				OccurredAt: time.Now().UTC(),
			}
			if err != nil {
				if !replayable(err) {
					return nil, err
				}
				var domainErr *errs.Error
				errors.As(err, &domainErr)
				record.ErrorKind = string(domainErr.Kind)
				record.ErrorCode = domainErr.Code
				record.ErrorMessage = domainErr.Message
				if saveErr := store.Save(ctx, record); saveErr != nil {
					return nil, errors.Join(err, saveErr)
				}
				return nil, err
			}
			if result != nil {
				payload, encErr := codec.Encode(result)
				if encErr != nil {
					return nil, encErr
				}
				record.Payload = payload
			}
			if saveErr := store.Save(ctx, record); saveErr != nil {
				return nil, saveErr
			}
			return result, nil
		})
	}
}

// ScopedKey is the storage key for an idempotent command.
func ScopedKey(cmd IdempotentCommand) string {
	return cmd.Key() + "|" + cmd.IdempotencyScope() + "|" + cmd.IdempotencyKey()
}

func replayable(err error) bool {
	var domainErr *errs.Error
	if !errors.As(err, &domainErr) {
		return false
	}
	switch domainErr.Kind {
	case errs.KindValidation, errs.KindNotFound, errs.KindConflict, errs.KindAuthorization:
		return domainErr.Code != errs.ErrConcurrentUpdate.Code
	}
	return false
}

func normalizePrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Interface()
	}
	return proto
}
