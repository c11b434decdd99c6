package payment

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"roomstay/internal/domain/shared/errs"
)

var (
	ErrMalformedNotification  = errs.InvalidNotification("malformed_notification", "payment: notification body is not valid JSON")
	ErrNotificationIncomplete = errs.InvalidNotification("missing_fields", "payment: notification is missing required fields")
	ErrBadSignature           = errs.InvalidNotification("bad_signature", "payment: notification signature mismatch")
)

// gatewayTimeLayout is how the gateway formats timestamps, in Western
// Indonesia time.
const gatewayTimeLayout = "2006-01-02 15:04:05"

var gatewayZone = time.FixedZone("WIB", 7*60*60)

// Notification is the gateway's status body, shared by webhooks and status
// queries.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	StatusMessage     string `json:"status_message"`
}

// DecodeNotification parses raw and checks the fields every report needs.
func DecodeNotification(raw []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, ErrMalformedNotification.WithCause(err)
	}
	var missing []string
	for name, v := range map[string]string{
		"order_id":           n.OrderID,
		"transaction_status": n.TransactionStatus,
		"status_code":        n.StatusCode,
		"gross_amount":       n.GrossAmount,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Notification{}, ErrNotificationIncomplete.WithMessage("payment: notification missing %s", strings.Join(missing, ", "))
	}
	return n, nil
}

// Report converts the wire body into a status report carrying raw for audit.
func (n Notification) Report(raw []byte) Report {
	return Report{
		OrderID:           OrderID(strings.TrimSpace(n.OrderID)),
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		StatusCode:        n.StatusCode,
		GrossAmount:       n.GrossAmount,
		TransactionID:     n.TransactionID,
		PaymentType:       n.PaymentType,
		TransactionTime:   parseGatewayTime(n.TransactionTime),
		SettlementTime:    parseGatewayTime(n.SettlementTime),
		Raw:               raw,
	}
}

func parseGatewayTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(gatewayTimeLayout, raw, gatewayZone)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil
		}
	}
	utc := t.UTC()
	return &utc
}
