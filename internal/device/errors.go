package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrEntryNotFound) {
//	    // handle not found case
//	}
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("device: entry not found")

	// ErrMalformedDescriptor is reported when a descriptor's reported payload
	// cannot be decoded. The affected fields fall back to zero values.
	ErrMalformedDescriptor = errors.New("device: malformed descriptor")

	// ErrInvalidDescriptor is returned when an inventory descriptor fails
	// validation. Such descriptors are skipped by reconciliation.
	ErrInvalidDescriptor = errors.New("device: invalid descriptor")

	// ErrInvalidEntry is returned when an entry fails validation before persistence.
	ErrInvalidEntry = errors.New("device: invalid entry")
)
