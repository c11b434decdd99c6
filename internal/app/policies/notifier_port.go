package policies

import "context"

// Notification is a message for one recipient. Delivery is fire-and-forget:
// a failed Send never rolls back the state change that produced it.
type Notification struct {
	Template    string         `json:"template"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	Reference   string         `json:"reference"`
	Data        map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
