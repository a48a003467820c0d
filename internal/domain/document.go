package domain

import "time"

// PropertyDoc is the denormalized, read-optimized view of a property kept in
// the index store. It is built from the source-of-truth aggregate but owned
// exclusively by the index store manager; auxiliary index memberships must
// mirror its fields at all times.
type PropertyDoc struct {
	ID          string
	Name        string
	NameLower   string
	Description string
	City        string
	Address     string
	Latitude    float64
	Longitude   float64

	TypeID     string
	TypeName   string
	StarRating int

	MinPrice float64
	MaxPrice float64
	AvgPrice float64
	Currency string

	AverageRating float64
	ReviewCount   int64
	BookingCount  int64
	ViewCount     int64

	MaxCapacity int
	UnitCount   int

	AmenityIDs   []string
	AmenityNames []string
	ServiceIDs   []string
	ImageURLs    []string

	// DynamicFields carries schema-less attributes as an explicit string map;
	// typed projections are built only where the concrete type is known.
	DynamicFields map[string]string

	IsActive   bool
	IsApproved bool
	IsFeatured bool

	PopularityScore float64

	CreatedAt time.Time
	UpdatedAt time.Time
	IndexedAt time.Time
}

// Visible reports whether the property may appear in search results.
func (d PropertyDoc) Visible() bool { return d.IsActive && d.IsApproved }

// UnitDoc is the per-unit companion document to PropertyDoc.
type UnitDoc struct {
	ID           string
	PropertyID   string
	Name         string
	UnitTypeID   string
	UnitTypeName string
	MaxCapacity  int
	BasePrice    float64
	Currency     string
	IsActive     bool
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DynamicFieldValue is one exact-match indexable attribute of a property,
// maintained independently of the primary document.
type DynamicFieldValue struct {
	PropertyID string
	Field      string
	Value      string
}
