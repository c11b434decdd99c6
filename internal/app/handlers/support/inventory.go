package support

import (
	"context"
	"errors"
	"log/slog"

	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/inventory"
)

// ApplyEffect performs the ledger operation a booking transition asked for.
// It must run in the unit that saved the booking. A release that finds the
// listing already at capacity is logged and ignored: the counter invariant
// still holds.
func ApplyEffect(ctx context.Context, ledger inventory.Ledger, b *domainbooking.Booking, effect domainbooking.InventoryEffect, logger *slog.Logger) error {
	switch effect {
	case domainbooking.EffectReserve:
		return ledger.Reserve(ctx, b.ListingID)
	case domainbooking.EffectRelease:
		err := ledger.Release(ctx, b.ListingID)
		if errors.Is(err, inventory.ErrAtCapacity) {
			if logger != nil {
				logger.Warn("release skipped, listing at capacity", "booking_id", b.ID, "listing_id", b.ListingID)
			}
			return nil
		}
		return err
	default:
		return nil
	}
}
