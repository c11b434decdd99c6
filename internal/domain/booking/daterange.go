package booking

import (
	"time"

	"roomstay/internal/domain/shared/daterange"
	"roomstay/internal/domain/shared/errs"
)

var (
	ErrCheckInInPast = errs.Validation("check_in_in_past", "booking: check-in date is in the past")
	ErrInvalidStay   = errs.Validation("invalid_stay", "booking: checkout must be after check-in")
)

// ValidateStay compares calendar dates only, so a same-day check-in is allowed.
func ValidateStay(dr daterange.DateRange, now time.Time) error {
	if err := dr.Validate(); err != nil {
		return ErrInvalidStay.WithCause(err)
	}
	if daterange.Day(dr.CheckIn).Before(daterange.Day(now)) {
		return ErrCheckInInPast
	}
	return nil
}
