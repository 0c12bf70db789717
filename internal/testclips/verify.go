package testclips

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/turnlat/internal/domain/model"
)

// DefaultToleranceMS is how far a measured onset may land from the generated one.
const DefaultToleranceMS = 20

// ErrVerificationFailed is returned when expected turns are missing from the measurements.
var ErrVerificationFailed = errors.New("measurements do not match generated clips")

// Miss is an expected turn with no matching measurement.
type Miss struct {
	RecordingID string
	Expected    ExpectedTurn
}

// Verification summarizes a comparison between a manifest and measured turns.
type Verification struct {
	Expected   int
	Matched    int
	Unexpected int
	MaxErrorMS int
	Missing    []Miss
}

// ReadManifest loads the manifest written by WriteDir.
func ReadManifest(dir string) ([]ManifestEntry, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}

// Verify checks that every expected turn has a measurement on the same
// recording whose caller onset and rtt are within toleranceMS. Each
// measurement satisfies at most one expected turn.
func Verify(entries []ManifestEntry, measurements []model.TurnMeasurement, toleranceMS int) (Verification, error) {
	if toleranceMS < 0 {
		toleranceMS = DefaultToleranceMS
	}

	byRecording := make(map[string][]model.TurnMeasurement)
	for _, m := range measurements {
		byRecording[m.RecordingID] = append(byRecording[m.RecordingID], m)
	}

	var v Verification
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.ID] = true
		got := byRecording[e.ID]
		used := make([]bool, len(got))

		for _, want := range e.Expected {
			v.Expected++
			idx, errMS := closest(got, used, want, toleranceMS)
			if idx < 0 {
				v.Missing = append(v.Missing, Miss{RecordingID: e.ID, Expected: want})
				continue
			}
			used[idx] = true
			v.Matched++
			v.MaxErrorMS = max(v.MaxErrorMS, errMS)
		}
		for _, u := range used {
			if !u {
				v.Unexpected++
			}
		}
	}
	for id, ms := range byRecording {
		if !known[id] {
			v.Unexpected += len(ms)
		}
	}

	if len(v.Missing) > 0 {
		return v, fmt.Errorf("%w: %d of %d turns missing", ErrVerificationFailed, len(v.Missing), v.Expected)
	}
	return v, nil
}

func closest(got []model.TurnMeasurement, used []bool, want ExpectedTurn, tol int) (int, int) {
	best, bestErr := -1, 0
	for i, m := range got {
		if used[i] {
			continue
		}
		e := max(absInt(m.UserOnsetMS-want.UserOnsetMS), absInt(m.RTTMS-want.RTTMS))
		if e > tol {
			continue
		}
		if best < 0 || e < bestErr {
			best, bestErr = i, e
		}
	}
	return best, bestErr
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
