package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"roomstay/internal/app/notifications"
)

type cloudEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeCloudEvent reads an envelope produced by the outbox worker.
func DecodeCloudEvent(body []byte) (notifications.Event, error) {
	var ce cloudEvent
	if err := json.Unmarshal(body, &ce); err != nil {
		return notifications.Event{}, fmt.Errorf("messaging: decode cloud event: %w", err)
	}
	if ce.Type == "" {
		return notifications.Event{}, fmt.Errorf("messaging: cloud event without type")
	}
	return notifications.Event{
		ID:   ce.ID,
		Name: strings.TrimSuffix(ce.Type, ".v1"),
		Data: ce.Data,
	}, nil
}

// LocalProducer hands relayed events straight to the notification relay. It
// stands in for Kafka when no brokers are configured.
type LocalProducer struct {
	Relay *notifications.Relay
}

func (p LocalProducer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	ev, err := DecodeCloudEvent(payload)
	if err != nil {
		return err
	}
	return p.Relay.Handle(ctx, ev)
}
