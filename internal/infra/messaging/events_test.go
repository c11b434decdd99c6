package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"roomstay/internal/app/notifications"
	appoutbox "roomstay/internal/app/outbox"
	"roomstay/internal/app/policies"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/shared/money"
	"roomstay/internal/infra/inbox"
	infraoutbox "roomstay/internal/infra/outbox"
)

type recordingNotifier struct {
	sent []policies.Notification
	fail bool
}

func (n *recordingNotifier) Send(ctx context.Context, msg policies.Notification) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func requestedRecord(t *testing.T) appoutbox.EventRecord {
	t.Helper()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(domainbooking.BookingRequested{
		BookingID:   "BK-ABC12345",
		ListingID:   "lst-1",
		OwnerID:     "owner-1",
		RequesterID: "guest-1",
		GuestName:   "Sari",
		GuestEmail:  "sari@example.com",
		CheckIn:     at.AddDate(0, 0, 7),
		CheckOut:    at.AddDate(0, 1, 7),
		Total:       money.IDR(3_000_000),
		At:          at,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return appoutbox.EventRecord{ID: "ev-1", Name: domainbooking.EventRequested, Aggregate: "BK-ABC12345", Payload: payload, OccurredAt: at}
}

func TestDecodeCloudEvent(t *testing.T) {
	rec := requestedRecord(t)
	body, headers, err := infraoutbox.Envelope(infraoutbox.Record{ID: rec.ID, Name: rec.Name, Payload: rec.Payload, Aggregate: rec.Aggregate, OccurredAt: rec.OccurredAt}, "app://roomstay")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if headers["content-type"] != "application/cloudevents+json" {
		t.Fatalf("unexpected headers %v", headers)
	}
	ev, err := DecodeCloudEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != "ev-1" || ev.Name != domainbooking.EventRequested {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := DecodeCloudEvent([]byte(`{"id":"x"}`)); err == nil {
		t.Fatalf("expected an error for an envelope without type")
	}
	if _, err := DecodeCloudEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed json")
	}
}

func TestForwardThroughLocalProducer(t *testing.T) {
	notifier := &recordingNotifier{}
	relay := &notifications.Relay{Notifier: notifier, Inbox: inbox.NewMemoryStore()}
	forward := infraoutbox.Forward(LocalProducer{Relay: relay}, "roomstay.", "app://roomstay")

	rec := requestedRecord(t)
	if err := forward(context.Background(), rec); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("expected owner and guest notifications, got %+v", notifier.sent)
	}
	templates := map[string]string{}
	for _, n := range notifier.sent {
		templates[n.Template] = n.RecipientID
	}
	if templates[notifications.TemplateBookingRequested] != "owner-1" || templates[notifications.TemplateBookingReceived] != "guest-1" {
		t.Fatalf("unexpected recipients %v", templates)
	}

	if err := forward(context.Background(), rec); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("redelivered event notified twice: %d notifications", len(notifier.sent))
	}
}

func TestRelaySwallowsDeliveryFailures(t *testing.T) {
	relay := &notifications.Relay{Notifier: &recordingNotifier{fail: true}}
	rec := requestedRecord(t)
	err := relay.Handle(context.Background(), notifications.Event{ID: rec.ID, Name: rec.Name, Data: rec.Payload})
	if err != nil {
		t.Fatalf("delivery failures must not surface: %v", err)
	}

	err = relay.Handle(context.Background(), notifications.Event{ID: "ev-2", Name: domainbooking.EventConfirmed, Data: json.RawMessage(`{"booking_id":`)})
	if err == nil {
		t.Fatalf("expected a decode error")
	}
}
