package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "roomstay/internal/app/outbox"
)

// Sink receives committed records when the outbox is flushed.
type Sink func(ctx context.Context, record appoutbox.EventRecord) error

// Outbox holds records added inside a unit until that unit commits, then
// hands them to Sink on Flush. Records added outside a unit are ready at once.
type Outbox struct {
	Sink   Sink
	Logger *slog.Logger

	mu        sync.Mutex
	ready     []appoutbox.EventRecord
	delivered []appoutbox.EventRecord
}

func NewOutbox(sink Sink, logger *slog.Logger) *Outbox {
	return &Outbox{Sink: sink, Logger: logger}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if u := unitFrom(ctx); u != nil {
		if u.afterCommit(func() { o.enqueue(record) }) {
			return nil
		}
	}
	o.enqueue(record)
	return nil
}

func (o *Outbox) enqueue(record appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = append(o.ready, record)
}

// Flush delivers ready records. Sink failures are logged, never returned:
// the state change that produced the record is already committed.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := o.ready
	o.ready = nil
	o.delivered = append(o.delivered, batch...)
	o.mu.Unlock()
	if o.Sink == nil {
		return nil
	}
	for _, rec := range batch {
		if err := o.Sink(ctx, rec); err != nil && o.Logger != nil {
			o.Logger.Warn("outbox delivery failed", "event", rec.Name, "event_id", rec.ID, "error", err)
		}
	}
	return nil
}

// Delivered lists every record flushed so far, oldest first.
func (o *Outbox) Delivered() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.delivered))
	copy(out, o.delivered)
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
