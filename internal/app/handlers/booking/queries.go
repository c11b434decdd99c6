package booking

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/dto"
	handlersupport "roomstay/internal/app/handlers/support"
	"roomstay/internal/app/queries"
	"roomstay/internal/app/uow"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	domainlistings "roomstay/internal/domain/listings"
	"roomstay/internal/domain/shared/errs"
)

const (
	getBookingKey          = "booking.get"
	listOwnerBookingsKey   = "owner.bookings.list"
	allStatusesFilterValue = "all"
)

var ErrUnknownStatus = errs.Validation("unknown_status", "booking: unknown status filter")

type GetBookingQuery struct {
	Principal identity.Principal
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string { return getBookingKey }

func (q GetBookingQuery) Caller() identity.Principal { return q.Principal }

func (q GetBookingQuery) RequiredRoles() []identity.Role { return nil }

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Booking{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	booking, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.Booking{}, err
	}
	if !authz.CanView(q.Principal, booking) {
		// Hide existence from unrelated callers.
		return dto.Booking{}, domainbooking.ErrBookingNotFound
	}
	listing, _ := unit.Listings().ByID(execCtx, booking.ListingID)
	return dto.MapBooking(booking, listing, authz.CanSeeGuestDocument(q.Principal, booking)), nil
}

type ListOwnerBookingsQuery struct {
	Principal identity.Principal
	Status    string
}

func (q ListOwnerBookingsQuery) Key() string { return listOwnerBookingsKey }

func (q ListOwnerBookingsQuery) Caller() identity.Principal { return q.Principal }

func (q ListOwnerBookingsQuery) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleOwner}
}

type ListOwnerBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListOwnerBookingsHandler) Handle(ctx context.Context, q ListOwnerBookingsQuery) (dto.BookingCollection, error) {
	statusFilter := strings.ToLower(strings.TrimSpace(q.Status))
	if statusFilter == "" {
		statusFilter = allStatusesFilterValue
	}
	allStatuses := statusFilter == allStatusesFilterValue
	if !allStatuses {
		if _, ok := domainbooking.ParseState(statusFilter); !ok {
			return dto.BookingCollection{}, ErrUnknownStatus.WithMessage("booking: unknown status filter %q", q.Status)
		}
	}

	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	owned, err := unit.Listings().ListByOwner(execCtx, domainlistings.OwnerID(q.Principal.ID))
	if err != nil {
		return dto.BookingCollection{}, err
	}
	items := make([]dto.Booking, 0)
	for _, listing := range owned {
		bookings, err := unit.Bookings().ListByListing(execCtx, listing.ID)
		if err != nil {
			return dto.BookingCollection{}, err
		}
		for _, booking := range bookings {
			if !allStatuses && string(booking.State) != statusFilter {
				continue
			}
			items = append(items, dto.MapBooking(booking, listing, authz.CanSeeGuestDocument(q.Principal, booking)))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if h.Logger != nil {
		h.Logger.Debug("owner bookings listed", "owner_id", q.Principal.ID, "count", len(items), "status", statusFilter)
	}
	return dto.BookingCollection{Items: items}, nil
}

var _ queries.Handler[GetBookingQuery, dto.Booking] = (*GetBookingHandler)(nil)
var _ queries.Handler[ListOwnerBookingsQuery, dto.BookingCollection] = (*ListOwnerBookingsHandler)(nil)
var _ authz.Guarded = GetBookingQuery{}
var _ authz.Guarded = ListOwnerBookingsQuery{}
