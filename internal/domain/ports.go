package domain

import (
	"context"
	"time"
)

// PropertyRepository is the external entity source: the relational system of
// record supplying aggregates and paged scans for rebuild.
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (PropertyAggregate, error)
	GetPaged(ctx context.Context, page, size int) ([]PropertyAggregate, int, error)
}

// PropertyIndex is the index store manager: atomic multi-index mutations and
// primary-record reads. Every mutation is one transaction; concurrent calls
// for distinct ids are safe, same-id calls must be serialized by the caller.
type PropertyIndex interface {
	Bootstrap(ctx context.Context) error
	Ping(ctx context.Context) error

	IndexProperty(ctx context.Context, doc PropertyDoc, units []UnitDoc) error
	UpdateProperty(ctx context.Context, doc PropertyDoc) error
	RemoveProperty(ctx context.Context, id string) error

	IndexUnit(ctx context.Context, unit UnitDoc) error
	RemoveUnit(ctx context.Context, unitID, propertyID string) error

	ReplaceAvailability(ctx context.Context, unitID string, ranges []AvailabilityRange) error
	ReplacePricingRules(ctx context.Context, unitID string, rules []PricingRule) error

	SetDynamicField(ctx context.Context, propertyID, field, value string) error
	RemoveDynamicField(ctx context.Context, propertyID, field string) error
	PropertiesByDynamicField(ctx context.Context, field, value string) ([]string, error)

	GetPropertyDoc(ctx context.Context, id string) (PropertyDoc, error)
	UpdateStatistics(ctx context.Context, id string, viewDelta, bookingDelta int64, rating *float64) error

	BumpSearchEpoch(ctx context.Context, city string) error
	SearchEpochs(ctx context.Context, city string) (string, error)
	IndexedCount(ctx context.Context) (int64, error)
}

// PropertySearcher answers read-only queries against the index.
type PropertySearcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) (bool, error)
}

// IndexMaintainer is implemented by stores that can repair and sweep their
// own structures in place.
type IndexMaintainer interface {
	RegisterScripts(ctx context.Context) error
	RunReindex(ctx context.Context) (int64, error)
	RunCleanup(ctx context.Context) (CleanupReport, error)
}

// Cache is the layered read-through cache consumed by the facade.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Counters() CacheCounters
}

// RateProvider resolves FX rates for cross-currency price filtering. A missing
// rate yields (1, false): callers keep the original amount instead of failing.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (float64, bool)
}
