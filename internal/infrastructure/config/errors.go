package config

import "errors"

// ErrInvalidConfig is returned when the loaded configuration fails validation.
// Startup must abort on it.
var ErrInvalidConfig = errors.New("config: invalid configuration")
