package events

import "errors"

// ErrParse is returned when an event body is malformed or its data cannot
// be applied. HTTP callers answer it with a client error.
var ErrParse = errors.New("events: malformed event")
