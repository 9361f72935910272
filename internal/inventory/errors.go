package inventory

import "errors"

var (
	// ErrFetch wraps transport errors, non-2xx responses and undecodable
	// responses from the inventory API. It is retryable.
	ErrFetch = errors.New("inventory: fetch failed")

	// ErrInvalidConfig is returned by NewClient when a required setting is missing.
	ErrInvalidConfig = errors.New("inventory: invalid config")
)
