package listings

import (
	"context"
	"errors"
	"log/slog"

	"roomstay/internal/app/commands"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/outbox"
	domainlistings "roomstay/internal/domain/listings"
)

const importListingsKey = "listings.import"

// ImportListingsCommand seeds the catalog. Existing listings are left alone,
// including their room counters.
type ImportListingsCommand struct {
	Items []domainlistings.CreateParams
}

func (c ImportListingsCommand) Key() string { return importListingsKey }

type ImportListingsResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type ImportListingsHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   handlersupport.Clock
	Logger  *slog.Logger
}

func (h *ImportListingsHandler) Handle(ctx context.Context, cmd ImportListingsCommand) (*ImportListingsResult, error) {
	unit, err := handlersupport.RequireUnit(ctx)
	if err != nil {
		return nil, err
	}
	result := &ImportListingsResult{}
	now := h.Clock.Now()
	for _, params := range cmd.Items {
		if params.Now.IsZero() {
			params.Now = now
		}
		listing, err := domainlistings.NewListing(params)
		if err != nil {
			return nil, err
		}
		if err := unit.Listings().Create(ctx, listing); err != nil {
			if errors.Is(err, domainlistings.ErrListingExists) {
				result.Skipped++
				continue
			}
			return nil, err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, outbox.Collect(listing)); err != nil {
			return nil, err
		}
		result.Created++
	}
	if h.Logger != nil {
		h.Logger.Info("listings imported", "created", result.Created, "skipped", result.Skipped)
	}
	return result, nil
}

var _ commands.Handler[ImportListingsCommand, *ImportListingsResult] = (*ImportListingsHandler)(nil)
