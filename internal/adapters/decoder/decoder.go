// Package decoder turns encoded call recordings into caller and agent energy traces.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

// Container formats.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"

	streamChunk = 4096
)

// Decoder splits a recording into its two channels. Channel 0 is the
// caller, channel 1 the agent.
type Decoder interface {
	Decode(data []byte, formatHint string) (caller, agent model.AudioChannel, err error)
}

// BeepDecoder decodes WAV and MP3 payloads.
type BeepDecoder struct {
	stepMS int
	log    logger.Logger
}

// New creates a decoder with configuration options.
func New(opts ...Option) *BeepDecoder {
	d := &BeepDecoder{stepMS: model.DefaultStepMS}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Get().Named("decoder")
	}
	return d
}

// Decode implements Decoder. The hint may be a file extension or a MIME type;
// when it is empty or unknown the container is sniffed from the payload.
func (d *BeepDecoder) Decode(data []byte, formatHint string) (model.AudioChannel, model.AudioChannel, error) {
	if len(data) == 0 {
		return model.AudioChannel{}, model.AudioChannel{}, ErrEmptyAudio
	}

	format := Detect(data, formatHint)
	var (
		stream beep.StreamSeekCloser
		bf     beep.Format
		err    error
	)
	switch format {
	case FormatWAV:
		stream, bf, err = wav.Decode(bytes.NewReader(data))
	case FormatMP3:
		// The mp3 decoder duplicates a mono stream into both channels.
		if mp3Mono(data) {
			return model.AudioChannel{}, model.AudioChannel{}, fmt.Errorf("%w: mono mp3", ErrUnsupportedChannels)
		}
		stream, bf, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return model.AudioChannel{}, model.AudioChannel{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, formatHint)
	}
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, fmt.Errorf("decode %s: %w", format, err)
	}
	defer func() { _ = stream.Close() }()

	if bf.NumChannels != 2 {
		return model.AudioChannel{}, model.AudioChannel{}, fmt.Errorf("%w: %d channels", ErrUnsupportedChannels, bf.NumChannels)
	}

	left, right, err := drain(stream)
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, fmt.Errorf("read %s samples: %w", format, err)
	}

	rate := int(bf.SampleRate)
	caller, err := model.NewChannel(model.ChannelCaller, left, rate, d.stepMS)
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, err
	}
	agent, err := model.NewChannel(model.ChannelAgent, right, rate, d.stepMS)
	if err != nil {
		return model.AudioChannel{}, model.AudioChannel{}, err
	}

	d.log.Debug(context.Background(), "recording decoded",
		logger.String("format", format),
		logger.Int("sample_rate", rate),
		logger.Int("frames", caller.Len()))
	return caller, agent, nil
}

func drain(s beep.Streamer) (left, right []float64, err error) {
	buf := make([][2]float64, streamChunk)
	for {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			left = append(left, smp[0])
			right = append(right, smp[1])
		}
		if !ok {
			break
		}
	}
	return left, right, s.Err()
}

// Detect resolves the container format from a hint, falling back to the
// payload's magic bytes. It returns "" when neither identifies the format.
func Detect(data []byte, hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if i := strings.IndexByte(h, ';'); i >= 0 {
		h = strings.TrimSpace(h[:i])
	}
	h = strings.TrimPrefix(h, ".")
	switch h {
	case FormatWAV, "wave", "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWAV
	case FormatMP3, "audio/mpeg", "audio/mp3":
		return FormatMP3
	}

	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return ""
}

// mp3Mono reports whether the first MPEG audio frame header after any ID3v2
// tag declares single-channel mode.
func mp3Mono(data []byte) bool {
	off := id3Size(data)
	for i := off; i+4 <= len(data); i++ {
		if validFrameHeader(data[i : i+4]) {
			return (data[i+3]>>6)&3 == 3
		}
	}
	return false
}

// id3Size returns the length of a leading ID3v2 tag, footer included.
func id3Size(data []byte) int {
	if len(data) < 10 || string(data[0:3]) != "ID3" {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	size += 10
	if data[5]&0x10 != 0 {
		size += 10
	}
	return min(size, len(data))
}

func validFrameHeader(h []byte) bool {
	return h[0] == 0xFF &&
		h[1]&0xE0 == 0xE0 &&
		(h[1]>>3)&3 != 1 && // reserved version
		(h[1]>>1)&3 != 0 && // reserved layer
		(h[2]>>4)&0xF != 0xF && // bad bitrate
		(h[2]>>2)&3 != 3 // reserved sample rate
}
