// Package gateway talks to a Snap-style hosted checkout: transactions are
// created on the Snap host and their status is read from the core API host.
package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"roomstay/internal/app/policies"
	domainpayment "roomstay/internal/domain/payment"
)

var (
	ErrNotConfigured      = errors.New("gateway: client not configured")
	ErrTransactionUnknown = errors.New("gateway: transaction not found")
)

const maxBody = 1 << 20

// SnapClient authenticates with the merchant server key as the basic-auth
// user name and an empty password.
type SnapClient struct {
	Client    *http.Client
	SnapURL   string
	APIURL    string
	ServerKey string
	Logger    *slog.Logger
}

type snapRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	ItemDetails        []itemDetail       `json:"item_details,omitempty"`
	CustomerDetails    *customerDetails   `json:"customer_details,omitempty"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type itemDetail struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type customerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func (c *SnapClient) CreateTransaction(ctx context.Context, req policies.TransactionRequest) (policies.Transaction, error) {
	if c == nil || c.Client == nil || c.SnapURL == "" {
		return policies.Transaction{}, ErrNotConfigured
	}
	payload := snapRequest{
		TransactionDetails: transactionDetails{OrderID: string(req.OrderID), GrossAmount: req.Amount.Amount},
		ItemDetails: []itemDetail{{
			ID:       req.ItemID,
			Price:    req.Amount.Amount,
			Quantity: 1,
			Name:     truncate(req.ItemName, 50),
		}},
	}
	if req.Customer != (policies.Customer{}) {
		payload.CustomerDetails = &customerDetails{FirstName: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return policies.Transaction{}, err
	}
	endpoint := strings.TrimRight(c.SnapURL, "/") + "/snap/v1/transactions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return policies.Transaction{}, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.SetBasicAuth(c.ServerKey, "")

	resp, err := c.Client.Do(request)
	if err != nil {
		c.logError("snap request failed", req.OrderID, err)
		return policies.Transaction{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return policies.Transaction{}, err
	}
	var out snapResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("snap returned status %d: %s", resp.StatusCode, snippet(raw, out.ErrorMessages))
		c.logError("snap returned error", req.OrderID, err)
		return policies.Transaction{}, err
	}
	if out.Token == "" {
		return policies.Transaction{}, fmt.Errorf("snap response without token: %s", snippet(raw, out.ErrorMessages))
	}
	return policies.Transaction{Token: out.Token, RedirectURL: out.RedirectURL}, nil
}

// Status reads the transaction status. The body has the notification shape;
// an unknown order comes back as status_code 404 inside a 200 response.
func (c *SnapClient) Status(ctx context.Context, orderID domainpayment.OrderID) (domainpayment.Report, error) {
	if c == nil || c.Client == nil || c.APIURL == "" {
		return domainpayment.Report{}, ErrNotConfigured
	}
	endpoint := strings.TrimRight(c.APIURL, "/") + "/v2/" + url.PathEscape(string(orderID)) + "/status"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domainpayment.Report{}, err
	}
	request.Header.Set("Accept", "application/json")
	request.SetBasicAuth(c.ServerKey, "")

	resp, err := c.Client.Do(request)
	if err != nil {
		c.logError("status request failed", orderID, err)
		return domainpayment.Report{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domainpayment.Report{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return domainpayment.Report{}, ErrTransactionUnknown
	}
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("status returned %d: %s", resp.StatusCode, snippet(raw, nil))
		c.logError("status returned error", orderID, err)
		return domainpayment.Report{}, err
	}
	var probe struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.StatusCode == "404" {
		return domainpayment.Report{}, ErrTransactionUnknown
	}
	n, err := domainpayment.DecodeNotification(raw)
	if err != nil {
		return domainpayment.Report{}, err
	}
	return n.Report(raw), nil
}

func (c *SnapClient) logError(msg string, orderID domainpayment.OrderID, err error) {
	if c.Logger != nil {
		c.Logger.Error(msg, "order_id", orderID, "error", err)
	}
}

func snippet(raw []byte, messages []string) string {
	if len(messages) > 0 {
		return strings.Join(messages, "; ")
	}
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return string(raw)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SHA512Verifier checks notification signatures:
// hex(sha512(order_id + status_code + gross_amount + server_key)).
type SHA512Verifier struct {
	ServerKey string
}

// NotificationVerifier returns nil when no server key is configured, so
// notification signatures go unchecked.
func NotificationVerifier(serverKey string) policies.SignatureVerifier {
	if strings.TrimSpace(serverKey) == "" {
		return nil
	}
	return SHA512Verifier{ServerKey: serverKey}
}

func (v SHA512Verifier) Sign(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + v.ServerKey))
	return hex.EncodeToString(sum[:])
}

func (v SHA512Verifier) Verify(orderID, statusCode, grossAmount, signature string) bool {
	if v.ServerKey == "" || signature == "" {
		return false
	}
	expected := v.Sign(orderID, statusCode, grossAmount)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) == 1
}

var (
	_ policies.PaymentGateway    = (*SnapClient)(nil)
	_ policies.SignatureVerifier = SHA512Verifier{}
)
