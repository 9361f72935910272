package sensor

import "errors"

var (
	// ErrDuplicateType is returned when a type tag is registered twice.
	ErrDuplicateType = errors.New("sensor: type already registered")

	// ErrInvalidHandler is returned for a nil handler or an empty type tag.
	ErrInvalidHandler = errors.New("sensor: invalid handler")

	// ErrMissingValue is returned when a recognised event carries no reading.
	ErrMissingValue = errors.New("sensor: event missing value")

	// ErrUnknownState is returned for a presence state other than
	// PRESENT or NOT_PRESENT.
	ErrUnknownState = errors.New("sensor: unknown presence state")
)
