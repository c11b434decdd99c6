package listings

import (
	"context"
	"time"

	"roomstay/internal/app/dto"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/queries"
	"roomstay/internal/app/uow"
	domainlistings "roomstay/internal/domain/listings"
	domainpricing "roomstay/internal/domain/pricing"
)

const quoteKey = "listings.quote"

// QuoteQuery prices a stay without reserving anything.
type QuoteQuery struct {
	ListingID     string    `validate:"required"`
	CheckIn       time.Time `validate:"required"`
	DurationUnit  string    `validate:"required"`
	DurationCount int
}

func (q QuoteQuery) Key() string { return quoteKey }

type QuoteHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *QuoteHandler) Handle(ctx context.Context, q QuoteQuery) (dto.Quote, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Quote{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	listing, err := unit.Listings().ByID(execCtx, domainlistings.ListingID(q.ListingID))
	if err != nil {
		return dto.Quote{}, err
	}
	durationUnit, err := domainpricing.ParseUnit(q.DurationUnit)
	if err != nil {
		return dto.Quote{}, err
	}
	quote, err := domainpricing.Calculate(domainpricing.Request{
		Rates:   listing.Rates,
		CheckIn: q.CheckIn,
		Unit:    durationUnit,
		Count:   q.DurationCount,
	})
	if err != nil {
		return dto.Quote{}, err
	}
	return dto.MapQuote(string(listing.ID), quote), nil
}

var _ queries.Handler[QuoteQuery, dto.Quote] = (*QuoteHandler)(nil)
