package payments_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	bookingapp "roomstay/internal/app/handlers/booking"
	listingsapp "roomstay/internal/app/handlers/listings"
	paymentsapp "roomstay/internal/app/handlers/payments"
	"roomstay/internal/app/middleware"
	appoutbox "roomstay/internal/app/outbox"
	"roomstay/internal/app/policies"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	"roomstay/internal/domain/inventory"
	domainlistings "roomstay/internal/domain/listings"
	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/pricing"
	"roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/idgen"
	"roomstay/internal/domain/shared/money"
	"roomstay/internal/infra/storage/memory"
)

type fakeGateway struct {
	mu        sync.Mutex
	calls     int
	createErr error
	report    domainpayment.Report
	statusErr error
}

func (g *fakeGateway) CreateTransaction(ctx context.Context, req policies.TransactionRequest) (policies.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.createErr != nil {
		return policies.Transaction{}, g.createErr
	}
	return policies.Transaction{Token: "snap-" + string(req.OrderID), RedirectURL: "https://pay.example/" + string(req.OrderID)}, nil
}

func (g *fakeGateway) Status(ctx context.Context, orderID domainpayment.OrderID) (domainpayment.Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return domainpayment.Report{}, g.statusErr
	}
	report := g.report
	report.OrderID = orderID
	return report, nil
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type harness struct {
	bus      commands.Bus
	listings *memory.ListingRepository
	bookings *memory.BookingRepository
	payments *memory.PaymentRepository
	outbox   *memory.Outbox
	gateway  *fakeGateway
}

func newHarness(t *testing.T, rooms int) *harness {
	t.Helper()
	listings := memory.NewListingRepository()
	bookings := memory.NewBookingRepository()
	payments := memory.NewPaymentRepository()
	factory := memory.Factory{
		ListingsRepo: listings,
		BookingsRepo: bookings,
		PaymentsRepo: payments,
	}
	box := memory.NewOutbox(nil, nil)
	encoder := appoutbox.JSONEventEncoder{}
	gw := &fakeGateway{}
	reconciler := &paymentsapp.Reconciler{UoWFactory: factory, Outbox: box, Encoder: encoder}

	base := commands.NewInMemoryBus()
	commands.RegisterHandler(base, listingsapp.ImportListingsCommand{}.Key(), &listingsapp.ImportListingsHandler{Outbox: box, Encoder: encoder})
	commands.RegisterHandler(base, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{Codes: idgen.BookingCodes(nil), Outbox: box, Encoder: encoder})
	commands.RegisterHandler(base, bookingapp.TransitionBookingCommand{}.Key(), &bookingapp.TransitionBookingHandler{Outbox: box, Encoder: encoder})
	commands.RegisterHandler(base, paymentsapp.InitiatePaymentCommand{}.Key(), &paymentsapp.InitiatePaymentHandler{
		UoWFactory: factory,
		Gateway:    gw,
		OrderIDs:   idgen.OrderIDs(nil),
		Outbox:     box,
		Encoder:    encoder,
	})
	commands.RegisterHandler(base, paymentsapp.ApplyNotificationCommand{}.Key(), &paymentsapp.ApplyNotificationHandler{Reconciler: reconciler})
	commands.RegisterHandler(base, paymentsapp.PollPaymentCommand{}.Key(), &paymentsapp.PollPaymentHandler{
		UoWFactory: factory,
		Gateway:    gw,
		Reconciler: reconciler,
	})

	bus := middleware.ChainCommands(
		base,
		middleware.Validation(middleware.NewStructValidator()),
		middleware.Authorization(authz.Authorizer{}),
		middleware.Idempotency(memory.NewIdempotencyStore(), middleware.JSONResultCodec{}),
		middleware.OutboxFlush(box),
		middleware.Transaction(factory, nil),
	)

	_, err := commands.Dispatch[listingsapp.ImportListingsCommand, *listingsapp.ImportListingsResult](context.Background(), bus, listingsapp.ImportListingsCommand{
		Items: []domainlistings.CreateParams{{
			ID:         "lst-1",
			Owner:      "owner-1",
			Title:      "Kost Dago",
			City:       "Bandung",
			TotalRooms: rooms,
			Rates:      pricing.RateTable{Monthly: money.IDR(3_000_000)},
			Active:     true,
		}},
	})
	if err != nil {
		t.Fatalf("import listings: %v", err)
	}
	return &harness{bus: bus, listings: listings, bookings: bookings, payments: payments, outbox: box, gateway: gw}
}

var (
	guest = identity.Principal{ID: "guest-1", Roles: []identity.Role{identity.RoleRequester}}
	owner = identity.Principal{ID: "owner-1", Roles: []identity.Role{identity.RoleOwner}}
)

func (h *harness) createBooking(t *testing.T, who identity.Principal, key string) (*dto.Booking, error) {
	t.Helper()
	return commands.Dispatch[bookingapp.CreateBookingCommand, *dto.Booking](context.Background(), h.bus, bookingapp.CreateBookingCommand{
		Principal:       who,
		ListingID:       "lst-1",
		CheckIn:         daterange.Day(time.Now()).AddDate(0, 0, 3),
		DurationUnit:    "monthly",
		DurationCount:   2,
		GuestName:       "Sari",
		GuestEmail:      "sari@example.com",
		IdempotencyKeyV: key,
	})
}

func (h *harness) sendNotification(orderID, status string) (*dto.NotificationAck, error) {
	body := fmt.Sprintf(`{"order_id":%q,"transaction_status":%q,"status_code":"200","gross_amount":"6000000.00","payment_type":"bank_transfer"}`, orderID, status)
	return commands.Dispatch[paymentsapp.ApplyNotificationCommand, *dto.NotificationAck](context.Background(), h.bus, paymentsapp.ApplyNotificationCommand{Payload: []byte(body)})
}

func (h *harness) notify(t *testing.T, orderID, status string) *dto.NotificationAck {
	t.Helper()
	ack, err := h.sendNotification(orderID, status)
	if err != nil {
		t.Fatalf("notification %s: %v", status, err)
	}
	return ack
}

func (h *harness) available(t *testing.T) int {
	t.Helper()
	l, err := h.listings.ByID(context.Background(), "lst-1")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	return l.AvailableRooms
}

func (h *harness) initiate(t *testing.T, bookingID string) *dto.Payment {
	t.Helper()
	payment, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](context.Background(), h.bus, paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: bookingID})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return payment
}

func (h *harness) transition(who identity.Principal, bookingID, action string) (*dto.Booking, error) {
	return commands.Dispatch[bookingapp.TransitionBookingCommand, *dto.Booking](context.Background(), h.bus, bookingapp.TransitionBookingCommand{Principal: who, BookingID: bookingID, Action: action})
}

func (h *harness) bookingState(t *testing.T, id string) domainbooking.State {
	t.Helper()
	b, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(id))
	if err != nil {
		t.Fatalf("booking %s: %v", id, err)
	}
	return b.State
}

func (h *harness) delivered(name string) bool {
	for _, rec := range h.outbox.Delivered() {
		if rec.Name == name {
			return true
		}
	}
	return false
}

func (h *harness) deliveredNames() []string {
	var names []string
	for _, rec := range h.outbox.Delivered() {
		names = append(names, rec.Name)
	}
	return names
}

func TestBookingPaymentLifecycle(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	booking, err := h.createBooking(t, guest, "create-1")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if booking.Status != string(domainbooking.StatePending) || booking.Total.Amount != 6_000_000 {
		t.Fatalf("unexpected booking %+v", booking)
	}
	if got := h.available(t); got != 0 {
		t.Fatalf("expected the room to be reserved, %d available", got)
	}
	if !h.delivered(domainbooking.EventRequested) {
		t.Fatalf("booking request must be delivered once the command commits; got %v", h.deliveredNames())
	}

	replayed, err := h.createBooking(t, guest, "create-1")
	if err != nil || replayed.ID != booking.ID {
		t.Fatalf("idempotent replay returned %+v (%v)", replayed, err)
	}
	if _, err := h.createBooking(t, identity.Principal{ID: "guest-2", Roles: guest.Roles}, ""); !errors.Is(err, inventory.ErrNoRoomsAvailable) {
		t.Fatalf("expected ErrNoRoomsAvailable, got %v", err)
	}

	initiate := paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: booking.ID}
	payment, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, initiate)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if payment.SnapToken == "" || payment.Status != string(domainpayment.StatusPending) || payment.Amount.Amount != 6_000_000 {
		t.Fatalf("unexpected payment %+v", payment)
	}
	again, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, initiate)
	if err != nil || !again.Reused || again.OrderID != payment.OrderID {
		t.Fatalf("expected pending payment to be reused, got %+v (%v)", again, err)
	}
	if h.gateway.calls != 1 {
		t.Fatalf("expected one gateway call, got %d", h.gateway.calls)
	}

	ack := h.notify(t, payment.OrderID, "settlement")
	if ack.Status != string(domainpayment.StatusSuccess) || !ack.Changed {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if dup := h.notify(t, payment.OrderID, "settlement"); dup.Changed {
		t.Fatalf("duplicate notification must not change anything: %+v", dup)
	}

	_, err = commands.Dispatch[bookingapp.TransitionBookingCommand, *dto.Booking](ctx, h.bus, bookingapp.TransitionBookingCommand{Principal: owner, BookingID: booking.ID, Action: "confirm"})
	if !errors.Is(err, domainbooking.ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed after settlement, got %v", err)
	}

	cancelled, err := commands.Dispatch[bookingapp.TransitionBookingCommand, *dto.Booking](ctx, h.bus, bookingapp.TransitionBookingCommand{Principal: guest, BookingID: booking.ID, Action: "cancel"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != string(domainbooking.StateCancelled) || cancelled.CancelReason != domainbooking.DefaultCancelReason {
		t.Fatalf("unexpected cancelled booking %+v", cancelled)
	}
	if got := h.available(t); got != 1 {
		t.Fatalf("expected the room back, %d available", got)
	}
	if !h.delivered(domainbooking.EventCancelled) {
		t.Fatalf("cancellation must be delivered with its own command; got %v", h.deliveredNames())
	}

	want := map[string]bool{
		domainbooking.EventRequested: false,
		domainpayment.EventInitiated: false,
		domainpayment.EventSucceeded: false,
		domainbooking.EventConfirmed: false,
		domainbooking.EventCancelled: false,
	}
	for _, name := range h.deliveredNames() {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("event %s was not delivered; got %v", name, h.deliveredNames())
		}
	}
}

func TestExpiredPaymentCancelsBooking(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	payment, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: booking.ID})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if ack := h.notify(t, payment.OrderID, "expire"); ack.Status != string(domainpayment.StatusFailed) {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if got := h.available(t); got != 1 {
		t.Fatalf("expected the room back after expiry, %d available", got)
	}

	late := h.notify(t, payment.OrderID, "settlement")
	if late.Changed || late.Status != string(domainpayment.StatusFailed) {
		t.Fatalf("late settlement must not revive a failed payment: %+v", late)
	}

	_, err = commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: booking.ID})
	if !errors.Is(err, domainpayment.ErrBookingNotPayable) {
		t.Fatalf("expected ErrBookingNotPayable for a cancelled booking, got %v", err)
	}
}

func TestInitiateRequiresRequester(t *testing.T) {
	h := newHarness(t, 1)
	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	_, err = commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](context.Background(), h.bus, paymentsapp.InitiatePaymentCommand{Principal: owner, BookingID: booking.ID})
	if !errors.Is(err, identity.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, err = commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](context.Background(), h.bus, paymentsapp.InitiatePaymentCommand{BookingID: booking.ID})
	if !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if h.gateway.calls != 0 {
		t.Fatalf("gateway must not be called, got %d calls", h.gateway.calls)
	}
}

func TestSettledBookingRoomAccounting(t *testing.T) {
	h := newHarness(t, 10)

	if _, err := h.createBooking(t, identity.Principal{ID: "guest-2", Roles: guest.Roles}, ""); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if got := h.available(t); got != 9 {
		t.Fatalf("expected 9 available, got %d", got)
	}
	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if got := h.available(t); got != 8 {
		t.Fatalf("expected 8 available, got %d", got)
	}

	payment := h.initiate(t, booking.ID)
	h.notify(t, payment.OrderID, "settlement")
	if state := h.bookingState(t, booking.ID); state != domainbooking.StateConfirmed {
		t.Fatalf("expected confirmed booking, got %s", state)
	}
	if got := h.available(t); got != 8 {
		t.Fatalf("settlement must not touch inventory, %d available", got)
	}

	for _, status := range []string{"expire", "deny", "cancel"} {
		ack := h.notify(t, payment.OrderID, status)
		if ack.Changed || ack.Status != string(domainpayment.StatusSuccess) {
			t.Fatalf("%s after settlement must not move the payment: %+v", status, ack)
		}
	}
	if state := h.bookingState(t, booking.ID); state != domainbooking.StateConfirmed {
		t.Fatalf("booking must stay confirmed, got %s", state)
	}
	if got := h.available(t); got != 8 {
		t.Fatalf("late failures must not release the room, %d available", got)
	}

	if _, err := h.transition(guest, booking.ID, "cancel"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.available(t); got != 9 {
		t.Fatalf("cancelling a confirmed booking must return one room, %d available", got)
	}
	if _, err := h.transition(guest, booking.ID, "cancel"); !errors.Is(err, domainbooking.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	if got := h.available(t); got != 9 {
		t.Fatalf("a repeated cancel must not release again, %d available", got)
	}
}

func TestOwnerRejectReturnsOneRoom(t *testing.T) {
	h := newHarness(t, 3)

	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if got := h.available(t); got != 2 {
		t.Fatalf("expected 2 available, got %d", got)
	}

	rejected, err := h.transition(owner, booking.ID, "reject")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != string(domainbooking.StateCancelled) {
		t.Fatalf("unexpected rejected booking %+v", rejected)
	}
	if got := h.available(t); got != 3 {
		t.Fatalf("reject must return exactly one room, %d available", got)
	}

	if _, err := h.transition(owner, booking.ID, "reject"); !errors.Is(err, domainbooking.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	if _, err := h.transition(guest, booking.ID, "cancel"); !errors.Is(err, domainbooking.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	if got := h.available(t); got != 3 {
		t.Fatalf("inventory must not change after the first release, %d available", got)
	}
}

func TestInitiateGatewayFailureKeepsBookingPending(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	h.gateway.set(func(g *fakeGateway) { g.createErr = context.DeadlineExceeded })

	_, err = commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: booking.ID, IdempotencyKeyV: "pay-1"})
	if !errs.IsKind(err, errs.KindUpstream) || !errors.Is(err, paymentsapp.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if _, err := h.payments.LatestForBooking(ctx, domainbooking.BookingID(booking.ID)); !errors.Is(err, domainpayment.ErrPaymentNotFound) {
		t.Fatalf("no payment may be stored after a gateway failure, got %v", err)
	}
	if state := h.bookingState(t, booking.ID); state != domainbooking.StatePending {
		t.Fatalf("booking must stay pending, got %s", state)
	}
	if got := h.available(t); got != 0 {
		t.Fatalf("the room must stay held, %d available", got)
	}

	h.gateway.set(func(g *fakeGateway) { g.createErr = nil })
	payment, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](ctx, h.bus, paymentsapp.InitiatePaymentCommand{Principal: guest, BookingID: booking.ID, IdempotencyKeyV: "pay-1"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if payment.Reused || payment.Status != string(domainpayment.StatusPending) {
		t.Fatalf("unexpected payment on retry %+v", payment)
	}
	if h.gateway.calls != 2 {
		t.Fatalf("expected two gateway calls, got %d", h.gateway.calls)
	}
}

func TestNotificationForUnknownOrder(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.sendNotification("PAY-UNKNOWN1", "settlement")
	if !errors.Is(err, domainpayment.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	exists, err := h.payments.Exists(context.Background(), "PAY-UNKNOWN1")
	if err != nil || exists {
		t.Fatalf("a notification must never create a payment (exists=%v, err=%v)", exists, err)
	}
}

func TestPollPayment(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	booking, err := h.createBooking(t, guest, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	payment := h.initiate(t, booking.ID)
	poll := paymentsapp.PollPaymentCommand{Principal: guest, OrderID: payment.OrderID}

	h.gateway.set(func(g *fakeGateway) { g.statusErr = errors.New("connection refused") })
	local, err := commands.Dispatch[paymentsapp.PollPaymentCommand, *dto.Payment](ctx, h.bus, poll)
	if err != nil {
		t.Fatalf("poll with gateway down: %v", err)
	}
	if !local.Stale || local.Status != string(domainpayment.StatusPending) {
		t.Fatalf("expected stale local state, got %+v", local)
	}

	h.gateway.set(func(g *fakeGateway) {
		g.statusErr = nil
		g.report = domainpayment.Report{TransactionStatus: "settlement", StatusCode: "200", GrossAmount: "6000000.00"}
	})
	for i := 0; i < 2; i++ {
		fresh, err := commands.Dispatch[paymentsapp.PollPaymentCommand, *dto.Payment](ctx, h.bus, poll)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if fresh.Stale || fresh.Status != string(domainpayment.StatusSuccess) {
			t.Fatalf("poll %d: unexpected payment %+v", i, fresh)
		}
	}
	if state := h.bookingState(t, booking.ID); state != domainbooking.StateConfirmed {
		t.Fatalf("expected confirmed booking, got %s", state)
	}
	if got := h.available(t); got != 0 {
		t.Fatalf("polling must not touch inventory, %d available", got)
	}

	confirmed := 0
	for _, name := range h.deliveredNames() {
		if name == domainbooking.EventConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Fatalf("expected one booking.confirmed event, got %d in %v", confirmed, h.deliveredNames())
	}
}
