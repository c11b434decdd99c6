package fixtures

import (
	"path/filepath"
	"testing"
	"time"

	domainlistings "roomstay/internal/domain/listings"
	"roomstay/internal/domain/pricing"
)

func TestLoadBundledListings(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	params, err := LoadListings(filepath.Join("..", "..", "..", "data", "listings.json"), now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(params))
	}
	for _, p := range params {
		l, err := domainlistings.NewListing(p)
		if err != nil {
			t.Fatalf("fixture %s does not build: %v", p.ID, err)
		}
		if !l.AcceptsBookings() {
			t.Fatalf("fixture %s should default to active", p.ID)
		}
	}
	dago := params[1]
	if dago.Available == nil || *dago.Available != 6 {
		t.Fatalf("available_rooms not carried: %+v", dago.Available)
	}
	if dago.Rates.Weekly == nil || dago.Rates.Weekly.Amount != 900_000 {
		t.Fatalf("weekly rate not decoded: %+v", dago.Rates)
	}
	if !params[0].Rates.Offers(pricing.Weekly) || params[0].Rates.Weekly != nil {
		t.Fatalf("kemang should offer a derived weekly rate: %+v", params[0].Rates)
	}
}

func TestDecodeListings(t *testing.T) {
	params, err := DecodeListings([]byte(`[{"id":"x","owner":"o","title":"t","total_rooms":1,"active":false,"rates":{"monthly":{"amount":1,"currency":"IDR"}}}]`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(params) != 1 || params[0].Active {
		t.Fatalf("explicit active=false ignored: %+v", params)
	}

	if _, err := DecodeListings([]byte(`{"id":"x"}`), time.Now()); err == nil {
		t.Fatalf("expected an error for a non-array document")
	}
	if params, err := DecodeListings(nil, time.Now()); err != nil || params != nil {
		t.Fatalf("empty input should yield nothing, got %v %v", params, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	params, err := LoadListings(filepath.Join(t.TempDir(), "absent.json"), time.Now())
	if err != nil || params != nil {
		t.Fatalf("missing file should yield nothing, got %v %v", params, err)
	}
}
