package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// BuildPropertyDoc projects a source aggregate into the denormalized search
// document plus its unit documents. Price and capacity figures come from
// active units only; inactive units are still carried as documents so a later
// re-activation needs no re-ingestion.
func BuildPropertyDoc(agg domain.PropertyAggregate, now time.Time) (domain.PropertyDoc, []domain.UnitDoc, error) {
	units := make([]domain.UnitDoc, 0, len(agg.Units))
	for _, rec := range agg.Units {
		u, err := BuildUnitDoc(agg.ID, rec)
		if err != nil {
			return domain.PropertyDoc{}, nil, err
		}
		units = append(units, u)
	}
	// sorted by id so "first unit" picks (currency) are deterministic
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	doc := domain.PropertyDoc{
		ID:          agg.ID,
		Name:        agg.Name,
		NameLower:   strings.ToLower(agg.Name),
		Description: agg.Description,
		City:        agg.City,
		Address:     agg.Address,
		Latitude:    agg.Latitude,
		Longitude:   agg.Longitude,

		TypeID:     agg.TypeID,
		TypeName:   agg.TypeName,
		StarRating: agg.StarRating,

		AverageRating: agg.AverageRating,
		ReviewCount:   agg.ReviewCount,
		BookingCount:  agg.BookingCount,
		ViewCount:     agg.ViewCount,

		UnitCount: len(units),

		AmenityIDs:   agg.AmenityIDs,
		AmenityNames: agg.AmenityNames,
		ServiceIDs:   agg.ServiceIDs,
		ImageURLs:    agg.ImageURLs,

		DynamicFields: agg.DynamicFields,

		IsActive:   agg.IsActive,
		IsApproved: agg.IsApproved,
		IsFeatured: agg.IsFeatured,

		CreatedAt: agg.CreatedAt.UTC(),
		UpdatedAt: agg.UpdatedAt.UTC(),
		IndexedAt: now.UTC(),
	}
	applyUnitStats(&doc, units)
	doc.PopularityScore = domain.PopularityScore(doc.AverageRating, doc.ReviewCount, doc.BookingCount, doc.ViewCount)
	return doc, units, nil
}

// BuildUnitDoc converts one unit record, enforcing that it belongs to the
// stated property.
func BuildUnitDoc(propertyID string, rec domain.UnitRecord) (domain.UnitDoc, error) {
	if rec.PropertyID != propertyID {
		return domain.UnitDoc{}, fmt.Errorf("unit %s belongs to %s: %w", rec.ID, rec.PropertyID, domain.ErrUnitMismatch)
	}
	return domain.UnitDoc{
		ID:           rec.ID,
		PropertyID:   rec.PropertyID,
		Name:         rec.Name,
		UnitTypeID:   rec.UnitTypeID,
		UnitTypeName: rec.UnitTypeName,
		MaxCapacity:  rec.MaxCapacity,
		BasePrice:    rec.BasePrice,
		Currency:     rec.Currency,
		IsActive:     rec.IsActive,
		IsAvailable:  rec.IsAvailable,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}, nil
}

// applyUnitStats fills min/max/avg price, capacity and currency from the
// active units. A property with no active units keeps zero prices, which
// excludes it from price-filtered searches without hiding it outright.
func applyUnitStats(doc *domain.PropertyDoc, units []domain.UnitDoc) {
	var sum float64
	var n int
	for _, u := range units {
		if !u.IsActive {
			continue
		}
		if n == 0 || u.BasePrice < doc.MinPrice {
			doc.MinPrice = u.BasePrice
		}
		if u.BasePrice > doc.MaxPrice {
			doc.MaxPrice = u.BasePrice
		}
		if u.MaxCapacity > doc.MaxCapacity {
			doc.MaxCapacity = u.MaxCapacity
		}
		if doc.Currency == "" {
			doc.Currency = u.Currency
		}
		sum += u.BasePrice
		n++
	}
	if n > 0 {
		doc.AvgPrice = sum / float64(n)
	}
}
