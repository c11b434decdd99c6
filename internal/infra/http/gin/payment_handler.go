package ginserver

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	paymentsapp "roomstay/internal/app/handlers/payments"
)

// maxNotificationBytes caps gateway notification bodies.
const maxNotificationBytes = 64 << 10

type PaymentHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

func (h PaymentHandler) Initiate(c *gin.Context) {
	cmd := paymentsapp.InitiatePaymentCommand{
		Principal:       currentPrincipal(c),
		BookingID:       c.Param("id"),
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}
	result, err := commands.Dispatch[paymentsapp.InitiatePaymentCommand, *dto.Payment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h PaymentHandler) Poll(c *gin.Context) {
	cmd := paymentsapp.PollPaymentCommand{Principal: currentPrincipal(c), OrderID: c.Param("order_id")}
	result, err := commands.Dispatch[paymentsapp.PollPaymentCommand, *dto.Payment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Notification takes the raw body; the signature covers fields of the
// original JSON document so it must not be re-encoded on the way in.
func (h PaymentHandler) Notification(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes+1))
	if err != nil {
		badRequest(c, "invalid_body", "could not read notification body")
		return
	}
	if len(body) > maxNotificationBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: errorPayload{Kind: "validation", Code: "payload_too_large", Message: "notification body too large"}})
		return
	}
	cmd := paymentsapp.ApplyNotificationCommand{Payload: body}
	result, err := commands.Dispatch[paymentsapp.ApplyNotificationCommand, *dto.NotificationAck](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PaymentHTTP = PaymentHandler{}
