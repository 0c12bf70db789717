package export

import "errors"

// Sentinel kinds for export errors. Exports are best effort; callers log these.
var (
	ErrEmptyPath  = errors.New("export path is empty")
	ErrNilReport  = errors.New("report is nil")
	ErrSinkClosed = errors.New("sqlite sink is closed")
)
