package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/dto"
	listingsapp "roomstay/internal/app/handlers/listings"
	"roomstay/internal/app/queries"
)

type ListingHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h ListingHandler) Quote(c *gin.Context) {
	checkIn, err := parseCheckIn(c.Query("check_in"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	count := 0
	if raw := c.Query("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid_count", "count must be an integer")
			return
		}
	}
	query := listingsapp.QuoteQuery{
		ListingID:     c.Param("id"),
		CheckIn:       checkIn,
		DurationUnit:  c.Query("unit"),
		DurationCount: count,
	}
	result, err := queries.Ask[listingsapp.QuoteQuery, dto.Quote](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ ListingHTTP = ListingHandler{}
