// Package pricing turns a listing's rate table and a requested stay duration
// into a checkout date and total price. It performs no I/O.
package pricing

import (
	"strings"
	"time"

	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/domain/shared/money"
)

var (
	ErrUnknownUnit      = errs.Validation("unknown_duration_unit", "pricing: duration unit must be weekly, monthly or yearly")
	ErrDurationRange    = errs.Validation("duration_out_of_range", "pricing: duration count out of range")
	ErrRateUnavailable  = errs.Validation("rate_unavailable", "pricing: listing has no rate for the requested unit")
	ErrCheckInRequired  = errs.Validation("check_in_required", "pricing: check-in date is required")
	ErrCurrencyMismatch = errs.Validation("currency_mismatch", "pricing: rate table mixes currencies")
)

type DurationUnit string

const (
	Weekly  DurationUnit = "weekly"
	Monthly DurationUnit = "monthly"
	Yearly  DurationUnit = "yearly"
)

// MaxCount is the largest duration count accepted per unit.
var MaxCount = map[DurationUnit]int{
	Weekly:  52,
	Monthly: 24,
	Yearly:  5,
}

func ParseUnit(raw string) (DurationUnit, error) {
	unit := DurationUnit(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := MaxCount[unit]; !ok {
		return "", ErrUnknownUnit.WithMessage("pricing: unknown duration unit %q", raw)
	}
	return unit, nil
}

// RateTable lists per-period prices. Monthly is mandatory. A weekly or yearly
// unit is offered when its price is set or its Offers flag is on; an offered
// unit without a price is derived from the monthly rate.
type RateTable struct {
	Weekly       *money.Money `json:"weekly,omitempty"`
	Monthly      money.Money  `json:"monthly"`
	Yearly       *money.Money `json:"yearly,omitempty"`
	OffersWeekly bool         `json:"offers_weekly,omitempty"`
	OffersYearly bool         `json:"offers_yearly,omitempty"`
}

func (r RateTable) Offers(unit DurationUnit) bool {
	switch unit {
	case Monthly:
		return true
	case Weekly:
		return r.Weekly != nil || r.OffersWeekly
	case Yearly:
		return r.Yearly != nil || r.OffersYearly
	default:
		return false
	}
}

func (r RateTable) Validate() error {
	if !r.Monthly.IsPositive() {
		return ErrRateUnavailable.WithMessage("pricing: monthly rate must be positive")
	}
	for _, opt := range []*money.Money{r.Weekly, r.Yearly} {
		if opt == nil {
			continue
		}
		if !opt.IsPositive() {
			return ErrRateUnavailable.WithMessage("pricing: optional rates must be positive when set")
		}
		if opt.Currency != r.Monthly.Currency {
			return ErrCurrencyMismatch
		}
	}
	return nil
}

type Request struct {
	Rates   RateTable
	CheckIn time.Time
	Unit    DurationUnit
	Count   int
}

type Quote struct {
	CheckIn   time.Time
	CheckOut  time.Time
	Unit      DurationUnit
	Count     int
	PerPeriod money.Money
	Total     money.Money
	// Derived is set when PerPeriod was computed from the monthly rate.
	Derived bool
}

// Calculate validates the request and prices the stay.
func Calculate(req Request) (Quote, error) {
	limit, ok := MaxCount[req.Unit]
	if !ok {
		return Quote{}, ErrUnknownUnit.WithMessage("pricing: unknown duration unit %q", req.Unit)
	}
	if req.Count <= 0 || req.Count > limit {
		return Quote{}, ErrDurationRange.WithMessage("pricing: %s duration must be between 1 and %d, got %d", req.Unit, limit, req.Count)
	}
	if req.CheckIn.IsZero() {
		return Quote{}, ErrCheckInRequired
	}
	if err := req.Rates.Validate(); err != nil {
		return Quote{}, err
	}

	perPeriod, derived, err := PerPeriod(req.Rates, req.Unit)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		CheckIn:   req.CheckIn,
		CheckOut:  CheckOut(req.CheckIn, req.Unit, req.Count),
		Unit:      req.Unit,
		Count:     req.Count,
		PerPeriod: perPeriod,
		Total:     perPeriod.Multiply(int64(req.Count)),
		Derived:   derived,
	}, nil
}

// PerPeriod picks the unit rate, deriving weekly (monthly/4) and yearly
// (monthly*12) prices for offered units that carry no price of their own.
func PerPeriod(rates RateTable, unit DurationUnit) (money.Money, bool, error) {
	if !rates.Offers(unit) {
		return money.Money{}, false, ErrRateUnavailable.WithMessage("pricing: listing does not offer %s stays", unit)
	}
	switch unit {
	case Monthly:
		return rates.Monthly, false, nil
	case Weekly:
		if rates.Weekly != nil {
			return *rates.Weekly, false, nil
		}
		return rates.Monthly.DivRound(4), true, nil
	case Yearly:
		if rates.Yearly != nil {
			return *rates.Yearly, false, nil
		}
		return rates.Monthly.Multiply(12), true, nil
	default:
		return money.Money{}, false, ErrUnknownUnit
	}
}

// CheckOut advances checkIn by count calendar units.
func CheckOut(checkIn time.Time, unit DurationUnit, count int) time.Time {
	switch unit {
	case Weekly:
		return checkIn.AddDate(0, 0, 7*count)
	case Monthly:
		return checkIn.AddDate(0, count, 0)
	case Yearly:
		return checkIn.AddDate(count, 0, 0)
	default:
		return checkIn
	}
}

func (r RateTable) Clone() RateTable {
	cp := r
	if r.Weekly != nil {
		v := *r.Weekly
		cp.Weekly = &v
	}
	if r.Yearly != nil {
		v := *r.Yearly
		cp.Yearly = &v
	}
	return cp
}
