package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrNoReport = errors.New("no completed run yet")
)
