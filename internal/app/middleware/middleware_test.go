package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"roomstay/internal/app/commands"
	"roomstay/internal/app/uow"
	"roomstay/internal/domain/shared/errs"
)

type mapStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func (s *mapStore) Get(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *mapStore) Save(ctx context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[string]IdempotencyRecord{}
	}
	s.items[rec.Key] = rec
	return nil
}

type reserveResult struct {
	Code  string `json:"code"`
	Calls int    `json:"calls"`
}

type reserveCommand struct {
	Caller string `validate:"required"`
	Rooms  int    `validate:"min=1,max=5"`
	Email  string `validate:"omitempty,email"`
	Token  string
}

func (c reserveCommand) Key() string              { return "test.reserve" }
func (c reserveCommand) IdempotencyKey() string   { return c.Token }
func (c reserveCommand) IdempotencyScope() string { return c.Caller }
func (c reserveCommand) ResultPrototype() any     { return &reserveResult{} }

type countingBus struct {
	calls int
	err   error
}

func (b *countingBus) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &reserveResult{Code: "BK-1", Calls: b.calls}, nil
}

func TestIdempotencyReplaysResults(t *testing.T) {
	base := &countingBus{}
	bus := ChainCommands(base, Idempotency(&mapStore{}, nil))
	ctx := context.Background()

	first, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{Caller: "guest-1", Token: "k1"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{Caller: "guest-1", Token: "k1"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if base.calls != 1 || *second != *first {
		t.Fatalf("expected replay of %+v, got %+v after %d calls", first, second, base.calls)
	}

	if _, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{Caller: "guest-2", Token: "k1"}); err != nil {
		t.Fatalf("other caller: %v", err)
	}
	if _, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{Caller: "guest-1"}); err != nil {
		t.Fatalf("no key: %v", err)
	}
	if base.calls != 3 {
		t.Fatalf("keys must be scoped per caller and optional, got %d calls", base.calls)
	}
}

func TestIdempotencyErrorReplay(t *testing.T) {
	errTaken := errs.Conflict("no_rooms_available", "inventory: no rooms available")
	cases := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "conflict is replayed", err: errTaken, wantCalls: 1},
		{name: "concurrent update is retried", err: errs.ErrConcurrentUpdate, wantCalls: 2},
		{name: "upstream is retried", err: errs.Upstream("gateway_unavailable", "gateway down", nil), wantCalls: 2},
		{name: "plain error is retried", err: errors.New("boom"), wantCalls: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := &countingBus{err: tc.err}
			bus := ChainCommands(base, Idempotency(&mapStore{}, JSONResultCodec{}))
			for i := 0; i < 2; i++ {
				_, err := commands.Dispatch[reserveCommand, *reserveResult](context.Background(), bus, reserveCommand{Caller: "guest-1", Token: "k1"})
				if errs.CodeOf(err) != errs.CodeOf(tc.err) {
					t.Fatalf("attempt %d: expected code %q, got %v", i, errs.CodeOf(tc.err), err)
				}
			}
			if base.calls != tc.wantCalls {
				t.Fatalf("expected %d handler calls, got %d", tc.wantCalls, base.calls)
			}
		})
	}
}

func TestStructValidator(t *testing.T) {
	base := &countingBus{}
	bus := ChainCommands(base, Validation(NewStructValidator()))

	_, err := commands.Dispatch[reserveCommand, *reserveResult](context.Background(), bus, reserveCommand{Rooms: 9, Email: "nope"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	for _, part := range []string{"caller is required", "rooms must be at most 5", "email must be a valid email"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("message %q lacks %q", err.Error(), part)
		}
	}
	if base.calls != 0 {
		t.Fatalf("handler must not run on invalid input")
	}
	if _, err := commands.Dispatch[reserveCommand, *reserveResult](context.Background(), bus, reserveCommand{Caller: "guest-1", Rooms: 1}); err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}
}

type fakeUnit struct {
	uow.UnitOfWork
	committed  bool
	rolledBack bool
}

func (u *fakeUnit) Commit(ctx context.Context) error {
	u.committed = true
	return nil
}

func (u *fakeUnit) Rollback(ctx context.Context) error {
	u.rolledBack = true
	return nil
}

type fakeFactory struct {
	units []*fakeUnit
}

func (f *fakeFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	u := &fakeUnit{}
	f.units = append(f.units, u)
	return u, nil
}

type selfManaged struct{ reserveCommand }

func (selfManaged) ManagesTransaction() bool { return true }

func TestTransaction(t *testing.T) {
	factory := &fakeFactory{}

	ok := ChainCommands(&countingBus{}, Transaction(factory, nil))
	if _, err := ok.Dispatch(context.Background(), reserveCommand{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	failing := ChainCommands(&countingBus{err: errors.New("boom")}, Transaction(factory, nil))
	if _, err := failing.Dispatch(context.Background(), reserveCommand{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ok.Dispatch(context.Background(), selfManaged{}); err != nil {
		t.Fatalf("self-managed: %v", err)
	}

	if len(factory.units) != 2 {
		t.Fatalf("self-managed commands must not open a unit, got %d units", len(factory.units))
	}
	if !factory.units[0].committed || factory.units[0].rolledBack {
		t.Fatalf("successful command must commit: %+v", factory.units[0])
	}
	if factory.units[1].committed || !factory.units[1].rolledBack {
		t.Fatalf("failed command must roll back: %+v", factory.units[1])
	}
}
