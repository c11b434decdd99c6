// Package fixtures reads seed listings from JSON files.
package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	domainlistings "roomstay/internal/domain/listings"
	"roomstay/internal/domain/pricing"
)

type listingFixture struct {
	ID             string            `json:"id"`
	Owner          string            `json:"owner"`
	Title          string            `json:"title"`
	City           string            `json:"city"`
	TotalRooms     int               `json:"total_rooms"`
	AvailableRooms *int              `json:"available_rooms"`
	Rates          pricing.RateTable `json:"rates"`
	Active         *bool             `json:"active"`
}

// LoadListings decodes the fixture file at path. A missing file yields no
// listings and no error.
func LoadListings(path string, now time.Time) ([]domainlistings.CreateParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return DecodeListings(data, now)
}

func DecodeListings(data []byte, now time.Time) ([]domainlistings.CreateParams, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	params := make([]domainlistings.CreateParams, 0, len(fixtures))
	for _, fx := range fixtures {
		active := true
		if fx.Active != nil {
			active = *fx.Active
		}
		params = append(params, domainlistings.CreateParams{
			ID:         domainlistings.ListingID(fx.ID),
			Owner:      domainlistings.OwnerID(fx.Owner),
			Title:      fx.Title,
			City:       fx.City,
			TotalRooms: fx.TotalRooms,
			Available:  fx.AvailableRooms,
			Rates:      fx.Rates,
			Active:     active,
			Now:        now,
		})
	}
	return params, nil
}

// DefaultPath returns the first existing candidate, or the first candidate.
func DefaultPath() string {
	candidates := []string{
		filepath.Join("data", "listings.json"),
		filepath.Join("..", "data", "listings.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
