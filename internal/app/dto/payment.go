package dto

import (
	"time"

	domainpayment "roomstay/internal/domain/payment"
)

type Payment struct {
	OrderID         string     `json:"order_id"`
	BookingID       string     `json:"booking_id"`
	Amount          MoneyDTO   `json:"amount"`
	Status          string     `json:"status"`
	GatewayStatus   string     `json:"gateway_status,omitempty"`
	FraudStatus     string     `json:"fraud_status,omitempty"`
	TransactionID   string     `json:"gateway_transaction_id,omitempty"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	TransactionTime *time.Time `json:"transaction_time,omitempty"`
	SettlementTime  *time.Time `json:"settlement_time,omitempty"`
	SnapToken       string     `json:"snap_token,omitempty"`
	RedirectURL     string     `json:"redirect_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	// Stale is set when the gateway could not be reached and the local record
	// is returned as-is.
	Stale bool `json:"stale,omitempty"`
	// Reused is set when initiate returned an existing pending payment.
	Reused bool `json:"reused,omitempty"`
}

// MapPayment leaves the raw gateway payload out.
func MapPayment(p *domainpayment.Payment) Payment {
	return Payment{
		OrderID:         string(p.OrderID),
		BookingID:       string(p.BookingID),
		Amount:          MapMoney(p.Amount),
		Status:          string(p.Status),
		GatewayStatus:   p.GatewayStatus,
		FraudStatus:     p.FraudStatus,
		TransactionID:   p.TransactionID,
		PaymentMethod:   p.PaymentMethod,
		TransactionTime: p.TransactionTime,
		SettlementTime:  p.SettlementTime,
		SnapToken:       p.SnapToken,
		RedirectURL:     p.RedirectURL,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type NotificationAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
}
