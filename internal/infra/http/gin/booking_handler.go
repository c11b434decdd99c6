package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	bookingapp "roomstay/internal/app/handlers/booking"
	meapp "roomstay/internal/app/handlers/me"
	"roomstay/internal/app/queries"
	"roomstay/internal/domain/shared/errs"
)

const dateLayout = "2006-01-02"

var errCheckInFormat = errs.Validation("invalid_check_in", "check_in must be YYYY-MM-DD or RFC3339")

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	ListingID       string `json:"listing_id"`
	CheckIn         string `json:"check_in"`
	DurationUnit    string `json:"duration_unit"`
	DurationCount   int    `json:"duration_count"`
	GuestName       string `json:"guest_name"`
	GuestPhone      string `json:"guest_phone"`
	GuestEmail      string `json:"guest_email"`
	GuestIDDocument string `json:"guest_id_document"`
	Notes           string `json:"notes"`
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}
	checkIn, err := parseCheckIn(req.CheckIn)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	cmd := bookingapp.CreateBookingCommand{
		Principal:       currentPrincipal(c),
		ListingID:       req.ListingID,
		CheckIn:         checkIn,
		DurationUnit:    req.DurationUnit,
		DurationCount:   req.DurationCount,
		GuestName:       req.GuestName,
		GuestPhone:      req.GuestPhone,
		GuestEmail:      req.GuestEmail,
		GuestIDDocument: req.GuestIDDocument,
		Notes:           req.Notes,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	query := bookingapp.GetBookingQuery{Principal: currentPrincipal(c), BookingID: c.Param("id")}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListMine(c *gin.Context) {
	query := meapp.ListMyBookingsQuery{Principal: currentPrincipal(c)}
	result, err := queries.Ask[meapp.ListMyBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListOwned(c *gin.Context) {
	query := bookingapp.ListOwnerBookingsQuery{Principal: currentPrincipal(c), Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListOwnerBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, authz.ActionConfirm)
}

func (h BookingHandler) Reject(c *gin.Context) {
	h.transition(c, authz.ActionReject)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	h.transition(c, authz.ActionCancel)
}

func (h BookingHandler) CheckIn(c *gin.Context) {
	h.transition(c, authz.ActionCheckIn)
}

func (h BookingHandler) CheckOut(c *gin.Context) {
	h.transition(c, authz.ActionCheckOut)
}

func (h BookingHandler) transition(c *gin.Context, action authz.Action) {
	var req transitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid_body", err.Error())
			return
		}
	}
	cmd := bookingapp.TransitionBookingCommand{
		Principal: currentPrincipal(c),
		BookingID: c.Param("id"),
		Action:    string(action),
		Reason:    req.Reason,
	}
	result, err := commands.Dispatch[bookingapp.TransitionBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Purge(c *gin.Context) {
	cmd := bookingapp.PurgeBookingCommand{Principal: currentPrincipal(c), BookingID: c.Param("id")}
	result, err := commands.Dispatch[bookingapp.PurgeBookingCommand, *bookingapp.PurgeBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseCheckIn accepts a calendar date or a full RFC3339 timestamp.
func parseCheckIn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errCheckInFormat.WithCause(err)
	}
	return t.UTC(), nil
}

var _ BookingHTTP = BookingHandler{}
