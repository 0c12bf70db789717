// Package scoring computes confidence and quality scores for turn pairings.
package scoring

import (
	"math"

	"github.com/okian/turnlat/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultThresholdDB     = -30.0
	defaultQualityWindowMS = 1000
	qualityScale           = 1000.0
	amplitudeFloor         = 1.0
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThreshold sets the noise floor (dBFS) that confidence is measured against.
// Only negative thresholds are meaningful.
func WithThreshold(thresholdDB float64) Option {
	return func(s *Scorer) {
		if thresholdDB < 0 {
			s.thresholdDB = thresholdDB
		}
	}
}

// WithQualityWindow sets the length of the sample used for quality scoring.
func WithQualityWindow(windowMS int) Option {
	return func(s *Scorer) {
		if windowMS > 0 {
			s.windowMS = windowMS
		}
	}
}

// Scorer scores accepted agent responses and the speech around an onset.
type Scorer struct {
	thresholdDB float64
	windowMS    int
}

// NewScorer creates a scorer with configuration options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		thresholdDB: defaultThresholdDB,
		windowMS:    defaultQualityWindowMS,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confidence is how far a frame sits above the noise floor, proportional to
// the floor itself: clamp01((dBFS - θ) / -θ). It is 0 at the floor and
// saturates at 1 for frames at or above 0 dBFS.
func (s *Scorer) Confidence(frameDBFS float64) float64 {
	return Clamp01((frameDBFS - s.thresholdDB) / -s.thresholdDB)
}

// ChannelQuality scores the window starting at startMS by its peak-to-RMS
// ratio: min(1, (peak / (rms + 1)) / 1000), and 0 when the window is silent.
// The window is truncated at the end of the channel.
func (s *Scorer) ChannelQuality(ch model.AudioChannel, startMS int) float64 {
	from := ch.FrameIndex(startMS)
	to := ch.FrameIndex(startMS + s.windowMS)
	if to > ch.Len() {
		to = ch.Len()
	}
	if from < 0 || from >= to {
		return 0
	}

	var peak, sumSq float64
	for i := from; i < to; i++ {
		f := ch.Frame(i)
		if f.Peak > peak {
			peak = f.Peak
		}
		sumSq += f.RMS * f.RMS
	}
	if peak == 0 {
		return 0
	}
	rms := math.Sqrt(sumSq / float64(to-from))
	return math.Min(1, (peak/(rms+amplitudeFloor))/qualityScale)
}

// PairQuality is the mean of the caller and agent channel qualities.
func (s *Scorer) PairQuality(caller, agent model.AudioChannel, userOnsetMS, agentOnsetMS int) float64 {
	return (s.ChannelQuality(caller, userOnsetMS) + s.ChannelQuality(agent, agentOnsetMS)) / 2
}

// Clamp01 limits v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
