package contracts

import "errors"

// Engine error taxonomy. Every failure inside an evaluation is contained at
// the smallest unit (underlying, observation, event, product) and surfaces
// as one of these through errors.Is.
var (
	// ErrDataUnavailable is returned when a price record, history point or
	// current price cannot be resolved. Never fatal: callers substitute a
	// default and flag the result as fallback.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidSchedule is returned for malformed or inconsistent dates.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrComputationFault marks an unexpected arithmetic or nil-propagation
	// fault inside one calculator.
	ErrComputationFault = errors.New("computation fault")

	// ErrInvalidProduct is returned when a product record fails validation.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)
