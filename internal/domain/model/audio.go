// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
)

// Audio frame constants.
const (
	// DefaultStepMS is the width of one energy frame.
	DefaultStepMS = 10
	// FullScale is the 16-bit sample magnitude that maps to 0 dBFS.
	FullScale = 32768.0
	msPerSecond = 1000
)

// ErrInvalidChannel is returned when channel parameters cannot produce frames.
var ErrInvalidChannel = errors.New("invalid audio channel")

// ChannelID names one side of a two-channel call recording.
type ChannelID string

// Channel identifiers. Channel 0 of a recording is the caller, channel 1 the agent.
const (
	ChannelCaller ChannelID = "caller"
	ChannelAgent  ChannelID = "agent"
)

// Frame is the energy summary of one fixed-width slice of a channel.
type Frame struct {
	DBFS float64 // level of the frame RMS relative to full scale; -Inf for digital silence
	RMS  float64 // root-mean-square amplitude on the 16-bit scale
	Peak float64 // absolute peak amplitude on the 16-bit scale
}

// AudioChannel is an immutable mono energy trace.
type AudioChannel struct {
	id     ChannelID
	stepMS int
	frames []Frame
}

// NewChannel slices normalized samples ([-1, 1]) into frames of stepMS.
// Trailing samples that do not fill a whole frame are dropped.
func NewChannel(id ChannelID, samples []float64, sampleRate, stepMS int) (AudioChannel, error) {
	if sampleRate <= 0 || stepMS <= 0 {
		return AudioChannel{}, fmt.Errorf("%w: sample rate %d, step %dms", ErrInvalidChannel, sampleRate, stepMS)
	}
	perFrame := sampleRate * stepMS / msPerSecond
	if perFrame < 1 {
		return AudioChannel{}, fmt.Errorf("%w: step %dms shorter than one sample at %dHz", ErrInvalidChannel, stepMS, sampleRate)
	}

	n := len(samples) / perFrame
	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = summarize(samples[i*perFrame : (i+1)*perFrame])
	}
	return AudioChannel{id: id, stepMS: stepMS, frames: frames}, nil
}

// NewChannelFromFrames builds a channel from precomputed frames. The slice is copied.
func NewChannelFromFrames(id ChannelID, stepMS int, frames []Frame) AudioChannel {
	cp := make([]Frame, len(frames))
	copy(cp, frames)
	return AudioChannel{id: id, stepMS: stepMS, frames: cp}
}

func summarize(win []float64) Frame {
	var sumSq, peak float64
	for _, s := range win {
		a := math.Abs(s)
		sumSq += s * s
		if a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(sumSq / float64(len(win)))
	return Frame{
		DBFS: LevelDBFS(rms),
		RMS:  rms * FullScale,
		Peak: peak * FullScale,
	}
}

// LevelDBFS converts a normalized RMS level to dBFS.
func LevelDBFS(rms float64) float64 {
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// ID returns the channel identifier.
func (c AudioChannel) ID() ChannelID { return c.id }

// StepMS returns the frame width in milliseconds.
func (c AudioChannel) StepMS() int { return c.stepMS }

// Len returns the number of frames.
func (c AudioChannel) Len() int { return len(c.frames) }

// Frame returns frame i. Callers must keep i within [0, Len()).
func (c AudioChannel) Frame(i int) Frame { return c.frames[i] }

// OffsetMS converts a frame index to a millisecond offset.
func (c AudioChannel) OffsetMS(i int) int { return i * c.stepMS }

// FrameIndex converts a millisecond offset to the frame that contains it.
func (c AudioChannel) FrameIndex(ms int) int {
	if c.stepMS <= 0 {
		return 0
	}
	return ms / c.stepMS
}

// DurationMS is the covered duration of all frames.
func (c AudioChannel) DurationMS() int { return len(c.frames) * c.stepMS }
