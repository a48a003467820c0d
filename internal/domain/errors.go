package domain

import "errors"

var (
	// ErrNotFound marks a referenced entity missing from the source of truth
	// or the index store.
	ErrNotFound = errors.New("not found")

	// ErrUnitMismatch is raised by referential checks when a unit does not
	// belong to the stated property.
	ErrUnitMismatch = errors.New("unit does not belong to property")

	// ErrStoreDisabled is returned when the index store is switched off by
	// configuration.
	ErrStoreDisabled = errors.New("index store disabled")

	// ErrCircuitOpen short-circuits calls while a breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
