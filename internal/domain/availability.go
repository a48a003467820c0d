package domain

import "time"

// RangeStatus classifies why a date range is unavailable.
type RangeStatus string

const (
	RangeBooked      RangeStatus = "booked"
	RangeMaintenance RangeStatus = "maintenance"
	RangeBlocked     RangeStatus = "blocked"
)

// AvailabilityRange is one half-open [Start, End) slice of a unit's timeline.
// Ranges of different statuses may coexist; a stay window is blocked when any
// stored range overlaps it.
type AvailabilityRange struct {
	UnitID    string
	Start     time.Time
	End       time.Time
	Status    RangeStatus
	BookingID string
}

// Overlaps reports whether the range blocks the half-open stay window
// [checkIn, checkOut).
func (r AvailabilityRange) Overlaps(checkIn, checkOut time.Time) bool {
	return r.Start.Before(checkOut) && r.End.After(checkIn)
}
