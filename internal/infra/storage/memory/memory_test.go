package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appoutbox "roomstay/internal/app/outbox"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

func seedListing(t *testing.T, repo *ListingRepository, total int) domainlistings.ListingID {
	t.Helper()
	l, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:         "lst-1",
		Owner:      "owner-1",
		Title:      "Studio",
		TotalRooms: total,
		Rates:      pricing.RateTable{Monthly: money.IDR(1_000_000)},
		Active:     true,
		Now:        time.Now(),
	})
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l.ID
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	repo := NewListingRepository()
	id := seedListing(t, repo, 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		refused int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Reserve(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, inventory.ErrNoRoomsAvailable):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if granted != 5 || refused != 45 {
		t.Fatalf("expected 5 granted and 45 refused, got %d and %d", granted, refused)
	}
	l, _ := repo.ByID(context.Background(), id)
	if l.AvailableRooms != 0 {
		t.Fatalf("expected 0 rooms left, got %d", l.AvailableRooms)
	}
}

func TestLedger_ReleaseAtCapacity(t *testing.T) {
	repo := NewListingRepository()
	id := seedListing(t, repo, 2)
	if err := repo.Release(context.Background(), id); !errors.Is(err, inventory.ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
	if err := repo.Reserve(context.Background(), "missing"); !errors.Is(err, domainlistings.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func newFactory() (Factory, *ListingRepository) {
	listings := NewListingRepository()
	return Factory{
		ListingsRepo: listings,
		BookingsRepo: NewBookingRepository(),
		PaymentsRepo: NewPaymentRepository(),
	}, listings
}

func TestUnit_RollbackUndoesWrites(t *testing.T) {
	factory, listings := newFactory()
	id := seedListing(t, listings, 3)

	unit, err := factory.Begin(context.Background(), uow.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ctx := uow.Bind(context.Background(), unit)
	if err := unit.Inventory().Reserve(ctx, id); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	b := &domainbooking.Booking{ID: "BK-1", ListingID: id, State: domainbooking.StatePending}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		t.Fatalf("save booking: %v", err)
	}
	if err := unit.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	l, _ := listings.ByID(context.Background(), id)
	if l.AvailableRooms != 3 {
		t.Fatalf("expected reserve undone, got %d rooms", l.AvailableRooms)
	}
	if ok, _ := factory.BookingsRepo.Exists(context.Background(), "BK-1"); ok {
		t.Fatalf("expected booking insert undone")
	}
	if err := unit.Commit(ctx); !errors.Is(err, ErrUnitClosed) {
		t.Fatalf("expected ErrUnitClosed after rollback, got %v", err)
	}
}

func TestUnit_ReadOnlyRejectsWrites(t *testing.T) {
	factory, listings := newFactory()
	id := seedListing(t, listings, 1)
	unit, err := factory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ctx := uow.Bind(context.Background(), unit)
	if err := unit.Inventory().Reserve(ctx, id); err == nil {
		t.Fatalf("expected read-only unit to refuse a reserve")
	}
}

func TestBookingSave_VersionGuard(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()
	b := &domainbooking.Booking{ID: "BK-1", State: domainbooking.StatePending}
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}
	first, _ := repo.ByID(ctx, "BK-1")
	second, _ := repo.ByID(ctx, "BK-1")

	first.State = domainbooking.StateConfirmed
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	second.State = domainbooking.StateCancelled
	if err := repo.Save(ctx, second); !errors.Is(err, errs.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	stored, _ := repo.ByID(ctx, "BK-1")
	if stored.State != domainbooking.StateConfirmed || stored.Version != 2 {
		t.Fatalf("unexpected stored booking: state=%s version=%d", stored.State, stored.Version)
	}
}

func TestPaymentSave_OneActivePerBooking(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	now := time.Now()
	first := &domainpayment.Payment{OrderID: "PAY-1", BookingID: "BK-1", Status: domainpayment.StatusPending, CreatedAt: now}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := &domainpayment.Payment{OrderID: "PAY-2", BookingID: "BK-1", Status: domainpayment.StatusPending, CreatedAt: now.Add(time.Second)}
	if err := repo.Save(ctx, second); !errors.Is(err, domainpayment.ErrPaymentInProgress) {
		t.Fatalf("expected ErrPaymentInProgress, got %v", err)
	}

	first.Status = domainpayment.StatusFailed
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("fail first: %v", err)
	}
	second.Version = 0
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("expected second payment after failure, got %v", err)
	}
	latest, err := repo.LatestForBooking(ctx, "BK-1")
	if err != nil || latest.OrderID != "PAY-2" {
		t.Fatalf("expected PAY-2 as latest, got %v (%v)", latest, err)
	}
}

func TestOutbox_DeliversOnlyAfterCommit(t *testing.T) {
	factory, _ := newFactory()
	var delivered []string
	box := NewOutbox(func(ctx context.Context, rec appoutbox.EventRecord) error {
		delivered = append(delivered, rec.ID)
		return nil
	}, nil)

	rolledBack, _ := factory.Begin(context.Background(), uow.TxOptions{})
	ctx := uow.Bind(context.Background(), rolledBack)
	_ = box.Add(ctx, appoutbox.EventRecord{ID: "ev-1"})
	_ = rolledBack.Rollback(ctx)
	_ = box.Flush(context.Background())
	if len(delivered) != 0 {
		t.Fatalf("rolled back record delivered: %v", delivered)
	}

	committed, _ := factory.Begin(context.Background(), uow.TxOptions{})
	ctx = uow.Bind(context.Background(), committed)
	_ = box.Add(ctx, appoutbox.EventRecord{ID: "ev-2"})
	_ = box.Flush(context.Background())
	if len(delivered) != 0 {
		t.Fatalf("record delivered before commit: %v", delivered)
	}
	_ = committed.Commit(ctx)
	_ = box.Flush(context.Background())
	if len(delivered) != 1 || delivered[0] != "ev-2" {
		t.Fatalf("expected ev-2 delivered, got %v", delivered)
	}
}
