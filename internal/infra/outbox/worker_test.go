package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	queue  []*Record
	sent   []string
	failed map[string]string
	next   time.Time
}

func (s *memStore) Claim(ctx context.Context, workerID string) (*Record, error) {
	if len(s.queue) == 0 {
		return nil, nil
	}
	rec := s.queue[0]
	s.queue = s.queue[1:]
	return rec, nil
}

func (s *memStore) MarkSent(ctx context.Context, id string) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = errMsg
	s.next = next
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type stubProducer struct {
	out []published
	err error
}

func (p *stubProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.out = append(p.out, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestTopicFor(t *testing.T) {
	cases := map[string]string{
		"booking.confirmed": "roomstay.booking.events.v1",
		"payment.failed":    "roomstay.payment.events.v1",
		"listing":           "roomstay.listing.events.v1",
	}
	for name, want := range cases {
		if got := TopicFor("roomstay.", name); got != want {
			t.Fatalf("TopicFor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestProcessOncePublishesEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &memStore{queue: []*Record{{
		ID:         "ev-1",
		Name:       "booking.confirmed",
		Aggregate:  "BK-1",
		Payload:    []byte(`{"booking_id":"BK-1"}`),
		OccurredAt: at,
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}}}
	producer := &stubProducer{}
	w := &Worker{Store: store, Producer: producer, TopicPrefix: "roomstay.", ID: "w1"}

	sent, err := w.processOnce(context.Background())
	if err != nil || !sent {
		t.Fatalf("processOnce = %v, %v", sent, err)
	}
	if len(store.sent) != 1 || store.sent[0] != "ev-1" {
		t.Fatalf("record not marked sent: %v", store.sent)
	}
	msg := producer.out[0]
	if msg.topic != "roomstay.booking.events.v1" || msg.key != "BK-1" {
		t.Fatalf("unexpected routing %s/%s", msg.topic, msg.key)
	}
	if msg.headers["traceparent"] != "00-abc-def-01" {
		t.Fatalf("headers not carried: %v", msg.headers)
	}
	var env map[string]any
	if err := json.Unmarshal(msg.payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env["id"] != "ev-1" || env["type"] != "booking.confirmed.v1" || env["source"] != "app://roomstay" || env["subject"] != "BK-1" {
		t.Fatalf("unexpected envelope %v", env)
	}

	if sent, err := w.processOnce(context.Background()); sent || err != nil {
		t.Fatalf("empty store should report nothing sent, got %v %v", sent, err)
	}
}

func TestProcessOnceSchedulesRetry(t *testing.T) {
	store := &memStore{queue: []*Record{{ID: "ev-1", Name: "payment.failed", Payload: []byte(`{}`), Attempts: 1}}}
	w := &Worker{Store: store, Producer: &stubProducer{err: errors.New("broker down")}, Backoff: []time.Duration{time.Second, time.Minute}}

	before := time.Now()
	if _, err := w.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if store.failed["ev-1"] != "broker down" {
		t.Fatalf("failure not recorded: %v", store.failed)
	}
	if store.next.Before(before.Add(time.Minute)) {
		t.Fatalf("expected the second backoff step, next attempt at %v", store.next)
	}
}

func TestProcessOnceRejectsBadPayload(t *testing.T) {
	store := &memStore{queue: []*Record{{ID: "ev-1", Name: "booking.requested", Payload: []byte(`not json`)}}}
	producer := &stubProducer{}
	w := &Worker{Store: store, Producer: producer}

	if _, err := w.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if _, ok := store.failed["ev-1"]; !ok || len(producer.out) != 0 {
		t.Fatalf("bad payload must be marked failed and not published")
	}
}

func TestRunRequiresDependencies(t *testing.T) {
	if err := (&Worker{}).Run(context.Background()); !errors.Is(err, ErrWorkerNotConfigured) {
		t.Fatalf("expected ErrWorkerNotConfigured, got %v", err)
	}
}
