// Package matcher pairs caller speech onsets with the agent's responding onset.
package matcher

import (
	"errors"
	"fmt"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/onset"
	"github.com/okian/turnlat/internal/domain/scoring"
)

// Scan advancement and search constants.
const (
	DefaultMaxWindowMS = 3000

	// pairSkipMS is how far past an accepted agent onset the caller scan resumes.
	// It steps over the rest of the agent utterance so one response is never
	// paired twice and agent bleed is not taken for a new caller onset.
	pairSkipMS = 1000
	// missSkipMS is the gap after a caller onset that found no response.
	missSkipMS = 500
)

// ErrChannelMismatch is returned when the two channels use different frame steps.
var ErrChannelMismatch = errors.New("caller and agent frame steps differ")

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithDetector sets the onset detector used on both channels.
func WithDetector(d *onset.Detector) Option {
	return func(m *Matcher) {
		if d != nil {
			m.detector = d
		}
	}
}

// WithScorer sets the confidence/quality scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.scorer = s
		}
	}
}

// WithMaxWindow sets how long after a caller onset an agent response may start.
func WithMaxWindow(ms int) Option {
	return func(m *Matcher) {
		if ms > 0 {
			m.maxWindowMS = ms
		}
	}
}

// Matcher finds caller/agent turn pairings in one recording.
type Matcher struct {
	detector    *onset.Detector
	scorer      *scoring.Scorer
	maxWindowMS int
}

// New creates a matcher. Without options it uses a -30 dBFS floor, 100ms
// sustain and a 3s response window.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		maxWindowMS: DefaultMaxWindowMS,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.detector == nil {
		m.detector = onset.NewDetector()
	}
	if m.scorer == nil {
		m.scorer = scoring.NewScorer(scoring.WithThreshold(m.detector.ThresholdDB()))
	}
	return m
}

// Response is the agent onset accepted for one caller onset.
type Response struct {
	Onset      model.SpeechOnsetEvent
	Confidence float64
}

// Pairing is one matched turn before recording metadata is attached.
type Pairing struct {
	UserOnsetMS  int
	AgentOnsetMS int
	Confidence   float64
	Quality      float64
}

// RTTMS is the turn latency of the pairing.
func (p Pairing) RTTMS() int { return p.AgentOnsetMS - p.UserOnsetMS }

// Respond finds the earliest validated agent onset for a caller onset at userOnsetMS.
// The search covers [userOnsetMS + D_min, min(end of channel, userOnsetMS + W_max)).
func (m *Matcher) Respond(agent model.AudioChannel, userOnsetMS int) (Response, bool) {
	from := agent.FrameIndex(userOnsetMS + m.detector.MinSustainMS())
	to := agent.FrameIndex(userOnsetMS + m.maxWindowMS)
	i, ok := m.detector.Next(agent, from, to)
	if !ok {
		return Response{}, false
	}
	return Response{
		Onset: model.SpeechOnsetEvent{
			ChannelID: agent.ID(),
			StartMS:   agent.OffsetMS(i),
			Verified:  true,
		},
		Confidence: m.scorer.Confidence(agent.Frame(i).DBFS),
	}, true
}

// Scan walks the caller channel and returns every turn pairing in order.
// Each step depends on where the previous one left the scan, so a single
// recording is always scanned sequentially.
func (m *Matcher) Scan(caller, agent model.AudioChannel) ([]Pairing, error) {
	if caller.StepMS() != agent.StepMS() {
		return nil, fmt.Errorf("%w: %dms vs %dms", ErrChannelMismatch, caller.StepMS(), agent.StepMS())
	}

	var pairs []Pairing
	pos := 0
	for pos < caller.Len() {
		i, ok := m.detector.Next(caller, pos, caller.Len())
		if !ok {
			break
		}
		t0 := caller.OffsetMS(i)

		resp, ok := m.Respond(agent, t0)
		if !ok {
			pos = max(i+1, caller.FrameIndex(t0+missSkipMS))
			continue
		}

		t1 := resp.Onset.StartMS
		pairs = append(pairs, Pairing{
			UserOnsetMS:  t0,
			AgentOnsetMS: t1,
			Confidence:   resp.Confidence,
			Quality:      m.scorer.PairQuality(caller, agent, t0, t1),
		})
		pos = max(i+1, caller.FrameIndex(t1+pairSkipMS))
	}
	return pairs, nil
}

// Measure scans a recording's channels and stamps each pairing with the
// recording metadata. The retention filter is applied by the store, not here.
func (m *Matcher) Measure(rec model.Recording, caller, agent model.AudioChannel) ([]model.TurnMeasurement, error) {
	pairs, err := m.Scan(caller, agent)
	if err != nil {
		return nil, err
	}
	out := make([]model.TurnMeasurement, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.TurnMeasurement{
			RecordingID:  rec.ID,
			CallID:       rec.CallID,
			Timestamp:    rec.CreatedAt,
			UserOnsetMS:  p.UserOnsetMS,
			AgentOnsetMS: p.AgentOnsetMS,
			RTTMS:        p.RTTMS(),
			Confidence:   p.Confidence,
			Quality:      p.Quality,
		})
	}
	return out, nil
}
