package matcher

import (
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/onset"
)

// OnsetPair is a (caller onset, agent onset) pair in milliseconds.
type OnsetPair struct {
	UserMS  int
	AgentMS int
}

// PairOnsets is the simplified pairing entry point kept for older callers
// that only need raw onset pairs at a given floor. It runs the full matcher
// with default sustain and window settings.
func PairOnsets(caller, agent model.AudioChannel, thresholdDB float64) []OnsetPair {
	m := New(WithDetector(onset.NewDetector(onset.WithThreshold(thresholdDB))))
	pairs, err := m.Scan(caller, agent)
	if err != nil {
		return nil
	}
	out := make([]OnsetPair, len(pairs))
	for i, p := range pairs {
		out[i] = OnsetPair{UserMS: p.UserOnsetMS, AgentMS: p.AgentOnsetMS}
	}
	return out
}
