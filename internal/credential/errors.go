package credential

import "errors"

var (
	// ErrAuth wraps every failure to obtain a token: signing, transport,
	// non-2xx responses and malformed responses. It is retryable.
	ErrAuth = errors.New("credential: authentication failed")

	// ErrInvalidConfig is returned by New when a required setting is missing.
	ErrInvalidConfig = errors.New("credential: invalid config")
)
