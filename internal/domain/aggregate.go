package domain

import "time"

// PropertyAggregate is the fully loaded property as supplied by the entity
// source. The index document builder consumes it; nothing here is stored
// verbatim in the index.
type PropertyAggregate struct {
	ID          string
	Name        string
	Description string
	City        string
	Address     string
	Latitude    float64
	Longitude   float64

	TypeID     string
	TypeName   string
	StarRating int

	AverageRating float64
	ReviewCount   int64
	BookingCount  int64
	ViewCount     int64

	IsActive   bool
	IsApproved bool
	IsFeatured bool

	AmenityIDs   []string
	AmenityNames []string
	ServiceIDs   []string
	ImageURLs    []string

	DynamicFields map[string]string

	Units []UnitRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnitRecord is one unit row inside a property aggregate.
type UnitRecord struct {
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
