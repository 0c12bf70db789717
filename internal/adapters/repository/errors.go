package repository

import "errors"

// Sentinel kinds for measurement store errors.
var (
	ErrFrozen    = errors.New("measurement store is frozen")
	ErrNotFrozen = errors.New("measurement store is not frozen")
)
