package app_test

import (
	"errors"
	"testing"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/app"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

func sampleAggregate() domain.PropertyAggregate {
	return domain.PropertyAggregate{
		ID:          "p1",
		Name:        "Sanaa Heights Hotel",
		Description: "Rooftop terrace above the old city souq.",
		City:        "Sanaa",
		Latitude:    15.3694,
		Longitude:   44.1910,
		TypeID:      "hotel",
		StarRating:  4,

		AverageRating: 4.2,
		ReviewCount:   57,
		BookingCount:  31,
		ViewCount:     412,

		IsActive:   true,
		IsApproved: true,
		IsFeatured: true,

		AmenityIDs:    []string{"wifi", "parking"},
		DynamicFields: map[string]string{"view": "sea"},

		Units: []domain.UnitRecord{
			{
				ID:          "u2",
				PropertyID:  "p1",
				Name:        "Family Suite",
				MaxCapacity: 6,
				BasePrice:   300,
				Currency:    "USD",
				IsActive:    true,
				CreatedAt:   time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			},
			{
				ID:          "u1",
				PropertyID:  "p1",
				Name:        "Deluxe Double",
				MaxCapacity: 2,
				BasePrice:   100,
				Currency:    "USD",
				IsActive:    true,
				CreatedAt:   time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			},
			{
				ID:          "u3",
				PropertyID:  "p1",
				Name:        "Closed Annex",
				MaxCapacity: 9,
				BasePrice:   999,
				Currency:    "SAR",
				IsActive:    false,
				CreatedAt:   time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			},
		},

		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestBuildPropertyDocDerivesUnitStats(t *testing.T) {
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	doc, units, err := app.BuildPropertyDoc(sampleAggregate(), now)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// figures come from the two active units only
	if doc.MinPrice != 100 || doc.MaxPrice != 300 || doc.AvgPrice != 200 {
		t.Fatalf("price stats: min=%v max=%v avg=%v", doc.MinPrice, doc.MaxPrice, doc.AvgPrice)
	}
	if doc.MaxCapacity != 6 {
		t.Fatalf("max capacity: got %d", doc.MaxCapacity)
	}
	if doc.Currency != "USD" {
		t.Fatalf("currency: got %q", doc.Currency)
	}
	// the inactive unit is still carried as a document
	if doc.UnitCount != 3 || len(units) != 3 {
		t.Fatalf("unit count: doc=%d built=%d", doc.UnitCount, len(units))
	}
	if units[0].ID != "u1" || units[1].ID != "u2" || units[2].ID != "u3" {
		t.Fatalf("units not sorted by id: %v %v %v", units[0].ID, units[1].ID, units[2].ID)
	}

	if doc.NameLower != "sanaa heights hotel" {
		t.Fatalf("name lower: got %q", doc.NameLower)
	}
	if doc.IndexedAt != now {
		t.Fatalf("indexed at: got %v", doc.IndexedAt)
	}
	want := domain.PopularityScore(4.2, 57, 31, 412)
	if doc.PopularityScore != want {
		t.Fatalf("popularity: got %v want %v", doc.PopularityScore, want)
	}
}

func TestBuildPropertyDocNoActiveUnits(t *testing.T) {
	agg := sampleAggregate()
	for i := range agg.Units {
		agg.Units[i].IsActive = false
	}
	doc, _, err := app.BuildPropertyDoc(agg, time.Now())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if doc.MinPrice != 0 || doc.MaxPrice != 0 || doc.AvgPrice != 0 {
		t.Fatalf("expected zero prices, got min=%v max=%v avg=%v", doc.MinPrice, doc.MaxPrice, doc.AvgPrice)
	}
	if doc.Currency != "" || doc.MaxCapacity != 0 {
		t.Fatalf("expected zero currency/capacity, got %q/%d", doc.Currency, doc.MaxCapacity)
	}
}

func TestBuildUnitDocRejectsForeignUnit(t *testing.T) {
	agg := sampleAggregate()
	agg.Units[1].PropertyID = "p9"
	_, _, err := app.BuildPropertyDoc(agg, time.Now())
	if !errors.Is(err, domain.ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
}
