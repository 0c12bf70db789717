// Package testclips builds synthetic two-channel call recordings with known
// speech timing, for tests and for smoke-testing the analyzer end to end.
package testclips

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/okian/turnlat/internal/domain/model"
)

// Default clip parameters. A 500Hz tone at 8kHz puts exactly five cycles in
// every 10ms frame, so each frame's RMS level equals the segment level.
const (
	DefaultSampleRate = 8000
	DefaultToneHz     = 500.0
	wavPrecision      = 2 // bytes per sample
	msPerSecond       = 1000
)

// Segment is a burst of tone on one channel.
type Segment struct {
	StartMS int
	EndMS   int
	DBFS    float64 // RMS level of the burst
}

// Clip describes a synthetic recording.
type Clip struct {
	DurationMS int
	SampleRate int
	ToneHz     float64
	Caller     []Segment
	Agent      []Segment
	// Mono drops the agent channel when the clip is encoded.
	Mono bool
}

func (c Clip) rate() int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return DefaultSampleRate
}

func (c Clip) tone() float64 {
	if c.ToneHz > 0 {
		return c.ToneHz
	}
	return DefaultToneHz
}

// Samples renders one channel's segments as normalized samples.
func (c Clip) Samples(segs []Segment) []float64 {
	rate := c.rate()
	out := make([]float64, c.DurationMS*rate/msPerSecond)
	w := 2 * math.Pi * c.tone() / float64(rate)
	for _, s := range segs {
		amp := math.Sqrt2 * math.Pow(10, s.DBFS/20)
		from := s.StartMS * rate / msPerSecond
		to := s.EndMS * rate / msPerSecond
		if to > len(out) {
			to = len(out)
		}
		for i := from; i < to; i++ {
			out[i] = amp * math.Sin(w*float64(i-from))
		}
	}
	return out
}

// Stereo interleaves caller (left) and agent (right) samples.
func (c Clip) Stereo() [][2]float64 {
	left := c.Samples(c.Caller)
	right := c.Samples(c.Agent)
	out := make([][2]float64, len(left))
	for i := range out {
		out[i] = [2]float64{left[i], right[i]}
	}
	return out
}

// Channels renders the clip straight into frame traces, skipping encoding.
func (c Clip) Channels(stepMS int) (caller, agent model.AudioChannel, err error) {
	caller, err = model.NewChannel(model.ChannelCaller, c.Samples(c.Caller), c.rate(), stepMS)
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, err
	}
	agent, err = model.NewChannel(model.ChannelAgent, c.Samples(c.Agent), c.rate(), stepMS)
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, err
	}
	return caller, agent, nil
}

// WriteWAV encodes the clip as 16-bit PCM WAV.
func (c Clip) WriteWAV(w io.WriteSeeker) error {
	channels := 2
	if c.Mono {
		channels = 1
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(c.rate()),
		NumChannels: channels,
		Precision:   wavPrecision,
	}
	if err := wav.Encode(w, &sliceStreamer{data: c.Stereo()}, format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// WAV returns the encoded clip.
func (c Clip) WAV() ([]byte, error) {
	var buf memFile
	if err := c.WriteWAV(&buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// sliceStreamer streams a fixed sample slice once.
type sliceStreamer struct {
	data [][2]float64
	pos  int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	n := copy(samples, s.data[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch its header.
type memFile struct {
	data []byte
	pos  int64
}

var errNegativeOffset = errors.New("negative seek offset")

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativeOffset
	}
	m.pos = abs
	return abs, nil
}
