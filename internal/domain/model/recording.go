package model

import "time"

// Recording is the metadata the recording source reports for one call recording.
type Recording struct {
	ID        string
	CallID    string
	CreatedAt time.Time
	FetchURI  string
	Format    string // container hint: "wav" or "mp3"
}

// Window bounds an analysis run by recording creation time. A zero bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// SkipReason classifies why a recording contributed no measurements.
type SkipReason string

// Skip reasons tallied per run.
const (
	SkipNone                SkipReason = ""
	SkipFetchFailed         SkipReason = "fetch_failed"
	SkipDecodeFailed        SkipReason = "decode_failed"
	SkipUnsupportedChannels SkipReason = "unsupported_channels"
	SkipCanceled            SkipReason = "canceled"
)

// RecordingOutcome is the typed result of analyzing one recording.
type RecordingOutcome struct {
	Recording    Recording
	Measurements []TurnMeasurement // pairings produced by the matcher, before the store filter
	Reason       SkipReason
	Err          error
}

// Skipped reports whether the recording failed before scanning.
func (o RecordingOutcome) Skipped() bool { return o.Reason != SkipNone }
