package domain

import "time"

// SortKey selects the search result ordering. Ties are always broken by
// ascending property id so pagination stays stable.
type SortKey string

const (
	SortPopularity SortKey = "popularity"
	SortPriceAsc   SortKey = "price_asc"
	SortPriceDesc  SortKey = "price_desc"
	SortRating     SortKey = "rating"
	SortNewest     SortKey = "newest"
	SortOldest     SortKey = "oldest"
	SortBookings   SortKey = "bookings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SearchRequest is a multi-criteria property query. Zero values mean "not
// filtered": empty strings, nil slices, zero times and non-positive numbers
// are ignored.
type SearchRequest struct {
	Text     string  `json:"text,omitempty"`
	City     string  `json:"city,omitempty"`
	TypeID   string  `json:"type_id,omitempty"`
	MinPrice float64 `json:"min_price,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`
	Currency string  `json:"currency,omitempty"`

	MinRating float64 `json:"min_rating,omitempty"`
	Guests    int     `json:"guests,omitempty"`

	AmenityIDs     []string          `json:"amenity_ids,omitempty"`
	DynamicFilters map[string]string `json:"dynamic_filters,omitempty"`

	CheckIn  time.Time `json:"check_in,omitempty"`
	CheckOut time.Time `json:"check_out,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	RadiusKm  float64 `json:"radius_km,omitempty"`

	Sort     SortKey `json:"sort,omitempty"`
	Page     int     `json:"page,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

// Normalize fills paging defaults and clamps the page size.
func (r *SearchRequest) Normalize() {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	if r.Sort == "" {
		r.Sort = SortPopularity
	}
}

// HasStayWindow reports whether the request carries a date window to check
// availability against.
func (r SearchRequest) HasStayWindow() bool {
	return !r.CheckIn.IsZero() && !r.CheckOut.IsZero() && r.CheckIn.Before(r.CheckOut)
}

// HasGeo reports whether a radius filter is requested.
func (r SearchRequest) HasGeo() bool { return r.RadiusKm > 0 }

// SearchResult is one page of matches; an empty page is a normal zero-count
// result, never an error. Degraded marks pages produced while the index store
// was unreachable.
type SearchResult struct {
	Items      []PropertyDoc `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
	Degraded   bool          `json:"degraded,omitempty"`
}

// EmptyResult builds the zero-count page for the request.
func EmptyResult(req SearchRequest, degraded bool) SearchResult {
	return SearchResult{
		Items:    []PropertyDoc{},
		Page:     req.Page,
		PageSize: req.PageSize,
		Degraded: degraded,
	}
}
