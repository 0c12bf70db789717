// Package onset finds validated speech onsets in a channel's energy trace.
//
// A frame is a candidate when its level strictly exceeds the noise floor θ.
// The candidate is validated when the candidate frame plus every above-θ
// frame in the following D_min milliseconds add up to at least D_min. The
// frames do not have to be contiguous, so a burst with a short dropout still
// validates. Choppy noise can validate as well; that is the defined behavior.
package onset

import (
	"github.com/okian/turnlat/internal/domain/model"
)

// Default detector configuration constants.
const (
	DefaultThresholdDB  = -30.0
	DefaultMinSustainMS = 100
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithThreshold sets the noise floor in dBFS.
func WithThreshold(thresholdDB float64) Option {
	return func(d *Detector) {
		d.thresholdDB = thresholdDB
	}
}

// WithMinSustain sets the minimum accumulated above-floor duration.
func WithMinSustain(ms int) Option {
	return func(d *Detector) {
		if ms > 0 {
			d.minSustainMS = ms
		}
	}
}

// Detector validates speech onsets against a noise floor.
type Detector struct {
	thresholdDB  float64
	minSustainMS int
}

// NewDetector creates a detector with configuration options.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		thresholdDB:  DefaultThresholdDB,
		minSustainMS: DefaultMinSustainMS,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ThresholdDB returns the noise floor.
func (d *Detector) ThresholdDB() float64 { return d.thresholdDB }

// MinSustainMS returns the sustained-activity requirement.
func (d *Detector) MinSustainMS() int { return d.minSustainMS }

// Above reports whether frame i strictly exceeds the noise floor.
func (d *Detector) Above(ch model.AudioChannel, i int) bool {
	return ch.Frame(i).DBFS > d.thresholdDB
}

// Sustained reports whether frame i begins a validated onset.
func (d *Detector) Sustained(ch model.AudioChannel, i int) bool {
	if i < 0 || i >= ch.Len() || !d.Above(ch, i) {
		return false
	}
	step := ch.StepMS()
	acc := step
	last := i + d.minSustainMS/step
	for j := i + 1; j <= last && j < ch.Len() && acc < d.minSustainMS; j++ {
		if d.Above(ch, j) {
			acc += step
		}
	}
	return acc >= d.minSustainMS
}

// Next returns the first validated onset frame in [from, to).
// Bounds are clamped to the channel.
func (d *Detector) Next(ch model.AudioChannel, from, to int) (int, bool) {
	if from < 0 {
		from = 0
	}
	if to > ch.Len() {
		to = ch.Len()
	}
	for i := from; i < to; i++ {
		if d.Sustained(ch, i) {
			return i, true
		}
	}
	return 0, false
}

// Detect returns the first validated onset of the whole channel.
func (d *Detector) Detect(ch model.AudioChannel) (model.SpeechOnsetEvent, bool) {
	i, ok := d.Next(ch, 0, ch.Len())
	if !ok {
		return model.SpeechOnsetEvent{ChannelID: ch.ID()}, false
	}
	return model.SpeechOnsetEvent{ChannelID: ch.ID(), StartMS: ch.OffsetMS(i), Verified: true}, true
}
