package dto

import (
	"time"

	domainpricing "roomstay/internal/domain/pricing"
)

type Quote struct {
	ListingID     string    `json:"listing_id"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out"`
	DurationUnit  string    `json:"duration_unit"`
	DurationCount int       `json:"duration_count"`
	PerPeriod     MoneyDTO  `json:"per_period_price"`
	Total         MoneyDTO  `json:"total_price"`
	Derived       bool      `json:"derived"`
}

func MapQuote(listingID string, q domainpricing.Quote) Quote {
	return Quote{
		ListingID:     listingID,
		CheckIn:       q.CheckIn,
		CheckOut:      q.CheckOut,
		DurationUnit:  string(q.Unit),
		DurationCount: q.Count,
		PerPeriod:     MapMoney(q.PerPeriod),
		Total:         MapMoney(q.Total),
		Derived:       q.Derived,
	}
}
