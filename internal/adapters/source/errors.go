package source

import "errors"

// Sentinel kinds for recording source errors. ErrUnauthorized and
// ErrUnavailable from List abort a run; fetch errors only skip one recording.
var (
	ErrUnauthorized = errors.New("recording source rejected credentials")
	ErrUnavailable  = errors.New("recording source unavailable")
	ErrFetchFailed  = errors.New("recording fetch failed")
	ErrOutsideRoot  = errors.New("path outside recording directory")
)
