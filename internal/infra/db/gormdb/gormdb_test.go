package gormdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"roomstay/internal/app/middleware"
	appoutbox "roomstay/internal/app/outbox"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Options{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func seedListing(t *testing.T, repo *ListingRepository, total int) domainlistings.ListingID {
	t.Helper()
	weekly := money.IDR(800_000)
	l, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:         "lst-1",
		Owner:      "owner-1",
		Title:      "Studio",
		City:       "Bandung",
		TotalRooms: total,
		Rates:      pricing.RateTable{Monthly: money.IDR(3_000_000), Weekly: &weekly},
		Active:     true,
		Now:        time.Now(),
	})
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("create: %v", err)
	}
	return l.ID
}

func newBooking(id domainbooking.BookingID, listing domainlistings.ListingID) *domainbooking.Booking {
	now := time.Now().UTC().Truncate(time.Second)
	checkIn := daterange.Day(now).AddDate(0, 0, 7)
	return &domainbooking.Booking{
		ID:          id,
		ListingID:   listing,
		OwnerID:     "owner-1",
		RequesterID: "guest-1",
		Stay:        daterange.DateRange{CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 1, 0)},
		Unit:        pricing.Monthly,
		Count:       1,
		PerPeriod:   money.IDR(3_000_000),
		Total:       money.IDR(3_000_000),
		Guest:       domainbooking.Guest{Name: "Sari", Email: "sari@example.com"},
		State:       domainbooking.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestListings_RoundTripAndDuplicate(t *testing.T) {
	db := openTestDB(t)
	repo := NewListingRepository(db)
	id := seedListing(t, repo, 3)

	got, err := repo.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Rates.Weekly == nil || got.Rates.Weekly.Amount != 800_000 {
		t.Fatalf("rates not round-tripped: %+v", got.Rates)
	}
	if got.AvailableRooms != 3 || got.State != domainlistings.ListingActive {
		t.Fatalf("unexpected listing %+v", got)
	}

	dup, _ := domainlistings.NewListing(domainlistings.CreateParams{
		ID: id, Owner: "owner-2", Title: "Other", TotalRooms: 1,
		Rates: pricing.RateTable{Monthly: money.IDR(1)}, Now: time.Now(),
	})
	if err := repo.Create(context.Background(), dup); !errors.Is(err, domainlistings.ErrListingExists) {
		t.Fatalf("expected ErrListingExists, got %v", err)
	}
	if _, err := repo.ByID(context.Background(), "missing"); !errors.Is(err, domainlistings.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestLedger_GuardedUpdates(t *testing.T) {
	db := openTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	id := seedListing(t, repo, 2)

	if err := repo.Release(ctx, id); !errors.Is(err, inventory.ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.Reserve(ctx, id); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if err := repo.Reserve(ctx, id); !errors.Is(err, inventory.ErrNoRoomsAvailable) {
		t.Fatalf("expected ErrNoRoomsAvailable, got %v", err)
	}
	if err := repo.Reserve(ctx, "missing"); !errors.Is(err, domainlistings.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if err := repo.Release(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	l, _ := repo.ByID(ctx, id)
	if l.AvailableRooms != 1 {
		t.Fatalf("expected 1 room available, got %d", l.AvailableRooms)
	}
}

func TestUnit_RollbackDiscardsReservationAndBooking(t *testing.T) {
	db := openTestDB(t)
	factory := NewFactory(db)
	id := seedListing(t, factory.ListingsRepo, 1)

	unit, err := factory.Begin(context.Background(), uow.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ctx := uow.Bind(context.Background(), unit)
	if err := unit.Inventory().Reserve(ctx, id); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := unit.Bookings().Save(ctx, newBooking("BK-1", id)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := unit.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	l, _ := factory.ListingsRepo.ByID(context.Background(), id)
	if l.AvailableRooms != 1 {
		t.Fatalf("reservation survived rollback: %d rooms", l.AvailableRooms)
	}
	if ok, _ := factory.BookingsRepo.Exists(context.Background(), "BK-1"); ok {
		t.Fatalf("booking survived rollback")
	}
}

func TestUnit_ReadOnlyRefusesWrites(t *testing.T) {
	db := openTestDB(t)
	factory := NewFactory(db)
	id := seedListing(t, factory.ListingsRepo, 1)

	unit, err := factory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ctx := uow.Bind(context.Background(), unit)
	if _, err := unit.Listings().ByID(ctx, id); err != nil {
		t.Fatalf("read in read-only unit: %v", err)
	}
	if err := unit.Inventory().Reserve(ctx, id); err == nil {
		t.Fatalf("expected read-only unit to refuse a reserve")
	}
	_ = unit.Commit(ctx)
}

func TestBookings_VersionGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	b := newBooking("BK-1", "lst-1")
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("expected version 1, got %d", b.Version)
	}
	stale, _ := repo.ByID(ctx, "BK-1")

	at := time.Now().UTC()
	b.State = domainbooking.StateConfirmed
	b.ConfirmedAt = &at
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale.State = domainbooking.StateCancelled
	if err := repo.Save(ctx, stale); !errors.Is(err, errs.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}

	got, err := repo.ByID(ctx, "BK-1")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.State != domainbooking.StateConfirmed || got.Version != 2 || got.ConfirmedAt == nil {
		t.Fatalf("unexpected stored booking: %+v", got)
	}
	if got.Guest.Email != "sari@example.com" || got.Total.Amount != 3_000_000 || got.Total.Currency != "IDR" {
		t.Fatalf("flattened columns not restored: %+v", got)
	}

	list, err := repo.ListByRequester(ctx, "guest-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one booking for requester, got %d (%v)", len(list), err)
	}
	if err := repo.Delete(ctx, "BK-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "BK-1"); !errors.Is(err, domainbooking.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestPayments_OneActivePerBooking(t *testing.T) {
	db := openTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &domainpayment.Payment{OrderID: "PAY-1", BookingID: "BK-1", Amount: money.IDR(100), Status: domainpayment.StatusPending, SnapToken: "tok", CreatedAt: now, UpdatedAt: now}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := &domainpayment.Payment{OrderID: "PAY-2", BookingID: "BK-1", Amount: money.IDR(100), Status: domainpayment.StatusPending, CreatedAt: now.Add(time.Second), UpdatedAt: now}
	if err := repo.Save(ctx, second); !errors.Is(err, domainpayment.ErrPaymentInProgress) {
		t.Fatalf("expected ErrPaymentInProgress, got %v", err)
	}

	first.Apply(domainpayment.Report{TransactionStatus: "expire", Raw: []byte(`{"transaction_status":"expire"}`)}, now)
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save failed payment: %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("expected a new payment once the first failed, got %v", err)
	}

	latest, err := repo.LatestForBooking(ctx, "BK-1")
	if err != nil || latest.OrderID != "PAY-2" {
		t.Fatalf("expected PAY-2 as latest, got %v (%v)", latest, err)
	}
	failed, _ := repo.ByOrderID(ctx, "PAY-1")
	if failed.Status != domainpayment.StatusFailed || string(failed.RawPayload) == "" {
		t.Fatalf("unexpected failed payment %+v", failed)
	}

	if err := repo.DeleteByBooking(ctx, "BK-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.LatestForBooking(ctx, "BK-1"); !errors.Is(err, domainpayment.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestOutbox_ClaimMarkSentAndRetry(t *testing.T) {
	db := openTestDB(t)
	store := NewOutboxStore(db)
	ctx := context.Background()

	rec := appoutbox.EventRecord{ID: "ev-1", Name: "booking.requested", Aggregate: "BK-1", Payload: []byte(`{"booking_id":"BK-1"}`), OccurredAt: time.Now()}
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	claimed, err := store.Claim(ctx, "worker-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	if again, _ := store.Claim(ctx, "worker-b"); again != nil {
		t.Fatalf("claimed record handed out twice")
	}

	if err := store.MarkFailed(ctx, claimed.ID, time.Now().Add(-time.Second), "broker down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	retry, err := store.Claim(ctx, "worker-b")
	if err != nil || retry == nil {
		t.Fatalf("expected failed record to be due again: %v %v", retry, err)
	}
	if retry.Attempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", retry.Attempts)
	}
	if err := store.MarkSent(ctx, retry.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if done, _ := store.Claim(ctx, "worker-c"); done != nil {
		t.Fatalf("sent record claimed again")
	}
}

func TestIdempotencyAndInbox(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	idem := NewIdempotencyStore(db)
	if _, ok, err := idem.Get(ctx, "k1"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	rec := middleware.IdempotencyRecord{Key: "k1", Payload: []byte(`{"id":"BK-1"}`), OccurredAt: time.Now()}
	if err := idem.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := idem.Get(ctx, "k1")
	if err != nil || !ok || string(got.Payload) != `{"id":"BK-1"}` {
		t.Fatalf("unexpected record %+v ok=%v err=%v", got, ok, err)
	}

	inbox := NewInboxStore(db, "notifications")
	seen, err := inbox.Seen(ctx, "ev-1")
	if err != nil || seen {
		t.Fatalf("first delivery reported seen=%v err=%v", seen, err)
	}
	seen, err = inbox.Seen(ctx, "ev-1")
	if err != nil || !seen {
		t.Fatalf("redelivery not detected: seen=%v err=%v", seen, err)
	}
	other := NewInboxStore(db, "audit")
	if seen, _ := other.Seen(ctx, "ev-1"); seen {
		t.Fatalf("inbox must be scoped per consumer")
	}
}
