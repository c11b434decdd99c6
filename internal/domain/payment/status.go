package payment

import (
	"strings"
	"time"
)

// Gateway transaction and fraud vocabulary.
const (
	GatewayCapture    = "capture"
	GatewaySettlement = "settlement"
	GatewayPending    = "pending"
	GatewayDeny       = "deny"
	GatewayCancel     = "cancel"
	GatewayExpire     = "expire"
	GatewayFailure    = "failure"
	GatewayRefund     = "refund"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
)

// Report is a normalised gateway status report, from a webhook or a status poll.
type Report struct {
	OrderID           OrderID
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
	TransactionID     string
	PaymentType       string
	TransactionTime   *time.Time
	SettlementTime    *time.Time
	Raw               []byte
}

// MapStatus folds gateway vocabulary into the internal tri-state. A capture
// counts as paid only once fraud screening accepted it.
func MapStatus(transactionStatus, fraudStatus string) Status {
	ts := strings.ToLower(strings.TrimSpace(transactionStatus))
	fs := strings.ToLower(strings.TrimSpace(fraudStatus))
	switch ts {
	case GatewaySettlement:
		return StatusSuccess
	case GatewayCapture:
		if fs == FraudAccept {
			return StatusSuccess
		}
		return StatusPending
	case GatewayCancel, GatewayDeny, GatewayExpire, GatewayFailure:
		return StatusFailed
	default:
		return StatusPending
	}
}
