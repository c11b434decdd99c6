package policies

import (
	"context"

	domainpayment "roomstay/internal/domain/payment"
	"roomstay/internal/domain/shared/money"
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

type TransactionRequest struct {
	OrderID  domainpayment.OrderID
	Amount   money.Money
	ItemID   string
	ItemName string
	Customer Customer
}

type Transaction struct {
	Token       string
	RedirectURL string
}

// PaymentGateway is the hosted-checkout provider. Implementations must honour
// ctx deadlines; callers never hold a database transaction across these calls.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error)
	Status(ctx context.Context, orderID domainpayment.OrderID) (domainpayment.Report, error)
}

// SignatureVerifier checks the signature carried by an inbound notification.
type SignatureVerifier interface {
	Verify(orderID, statusCode, grossAmount, signature string) bool
}

// PayloadArchive keeps raw gateway payloads for audit.
type PayloadArchive interface {
	Archive(ctx context.Context, orderID domainpayment.OrderID, payload []byte) error
}
