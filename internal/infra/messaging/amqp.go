// Package messaging delivers notifications and carries relayed events
// between the outbox and the notification relay.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"roomstay/internal/app/policies"
)

const DefaultQueue = "notifications"

// AMQPNotifier publishes each notification as a persistent JSON message on a
// durable queue. The connection is opened lazily and re-opened after a
// failed publish.
type AMQPNotifier struct {
	URL    string
	Queue  string
	Logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(url, queue string, logger *slog.Logger) *AMQPNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPNotifier{URL: url, Queue: queue, Logger: logger}
}

func (n *AMQPNotifier) Send(ctx context.Context, msg policies.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("messaging: marshal notification: %w", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, err := n.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Template,
		MessageId:    msg.Template + ":" + msg.Reference,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", n.Queue, false, false, pub); err != nil {
		n.reset()
		return fmt.Errorf("messaging: publish: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	if n.ch != nil && !n.ch.IsClosed() {
		return n.ch, nil
	}
	n.reset()
	conn, err := amqp.Dial(n.URL)
	if err != nil {
		return nil, fmt.Errorf("messaging: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(n.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: declare queue: %w", err)
	}
	n.conn, n.ch = conn, ch
	if n.Logger != nil {
		n.Logger.Info("notification channel opened", "queue", n.Queue)
	}
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.ch, n.conn = nil, nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.ch != nil {
		err = n.ch.Close()
	}
	if n.conn != nil {
		err = errors.Join(err, n.conn.Close())
	}
	n.ch, n.conn = nil, nil
	return err
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg policies.Notification) error {
	if n.Logger != nil {
		n.Logger.InfoContext(ctx, "notification", "template", msg.Template, "recipient_id", msg.RecipientID, "email", msg.Email, "reference", msg.Reference)
	}
	return nil
}

var (
	_ policies.Notifier = (*AMQPNotifier)(nil)
	_ policies.Notifier = LogNotifier{}
)
