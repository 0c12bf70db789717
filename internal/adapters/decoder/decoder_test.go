package decoder_test

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/adapters/decoder"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/testclips"
	"github.com/okian/turnlat/pkg/logger"
)

func TestBeepDecoder(t *testing.T) {
	_ = logger.Init()

	clip := testclips.Clip{
		DurationMS: 1000,
		Caller:     []testclips.Segment{{StartMS: 100, EndMS: 400, DBFS: -20}},
		Agent:      []testclips.Segment{{StartMS: 500, EndMS: 900, DBFS: -12}},
	}

	Convey("Given a stereo WAV recording", t, func() {
		data, err := clip.WAV()
		So(err, ShouldBeNil)
		d := decoder.New()

		Convey("When decoding it", func() {
			caller, agent, err := d.Decode(data, "wav")

			Convey("Then channel 0 becomes the caller and channel 1 the agent", func() {
				So(err, ShouldBeNil)
				So(caller.ID(), ShouldEqual, model.ChannelCaller)
				So(agent.ID(), ShouldEqual, model.ChannelAgent)
				So(caller.Len(), ShouldEqual, 100)
				So(agent.Len(), ShouldEqual, 100)
			})

			Convey("Then frame levels survive 16-bit encoding", func() {
				So(caller.Frame(20).DBFS, ShouldAlmostEqual, -20, 0.05)
				So(agent.Frame(60).DBFS, ShouldAlmostEqual, -12, 0.05)
				So(caller.Frame(60).DBFS, ShouldBeLessThan, -60)
			})
		})

		Convey("When decoding without a hint", func() {
			caller, _, err := d.Decode(data, "")

			Convey("Then the container is sniffed", func() {
				So(err, ShouldBeNil)
				So(caller.Len(), ShouldEqual, 100)
			})
		})

		Convey("When a wider frame step is configured", func() {
			caller, _, err := decoder.New(decoder.WithFrameStep(20)).Decode(data, "audio/wav")

			Convey("Then frames cover the configured width", func() {
				So(err, ShouldBeNil)
				So(caller.StepMS(), ShouldEqual, 20)
				So(caller.Len(), ShouldEqual, 50)
			})
		})
	})

	Convey("Given a mono WAV recording", t, func() {
		mono := clip
		mono.Mono = true
		data, err := mono.WAV()
		So(err, ShouldBeNil)

		Convey("When decoding it", func() {
			_, _, err := decoder.New().Decode(data, "wav")

			Convey("Then it is rejected as unsupported", func() {
				So(errors.Is(err, decoder.ErrUnsupportedChannels), ShouldBeTrue)
			})
		})
	})

	Convey("Given a mono MP3 recording", t, func() {
		// ID3v2.4 tag holding 4 bytes of padding, then an MPEG-1 Layer III
		// header at 128 kbps / 44.1 kHz in single-channel mode.
		tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0}
		frame := append([]byte{0xFF, 0xFB, 0x90, 0xC4}, make([]byte, 413)...)
		data := append(tag, frame...)

		Convey("When decoding it with an mp3 hint", func() {
			_, _, err := decoder.New().Decode(data, "mp3")

			Convey("Then it is rejected as unsupported", func() {
				So(errors.Is(err, decoder.ErrUnsupportedChannels), ShouldBeTrue)
			})
		})

		Convey("When decoding it without a hint", func() {
			_, _, err := decoder.New().Decode(frame, "")

			Convey("Then the sniffed stream is rejected too", func() {
				So(errors.Is(err, decoder.ErrUnsupportedChannels), ShouldBeTrue)
			})
		})

		Convey("When the same header declares joint stereo", func() {
			stereo := append([]byte{0xFF, 0xFB, 0x90, 0x44}, make([]byte, 413)...)
			_, _, err := decoder.New().Decode(stereo, "mp3")

			Convey("Then it is not rejected for its channel count", func() {
				So(errors.Is(err, decoder.ErrUnsupportedChannels), ShouldBeFalse)
			})
		})
	})

	Convey("Given payloads that are not audio", t, func() {
		d := decoder.New()

		Convey("Then an empty payload is rejected", func() {
			_, _, err := d.Decode(nil, "wav")
			So(errors.Is(err, decoder.ErrEmptyAudio), ShouldBeTrue)
		})

		Convey("Then an unknown container is rejected", func() {
			_, _, err := d.Decode([]byte("hello world, not audio"), "ogg")
			So(errors.Is(err, decoder.ErrUnsupportedFormat), ShouldBeTrue)
		})

		Convey("Then a truncated WAV fails to decode", func() {
			_, _, err := d.Decode([]byte("RIFF\x00\x00\x00\x00WAVE"), "wav")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, decoder.ErrUnsupportedChannels), ShouldBeFalse)
		})
	})
}

func TestDetect(t *testing.T) {
	Convey("Given format hints and payloads", t, func() {
		cases := []struct {
			data []byte
			hint string
			want string
		}{
			{nil, ".WAV", decoder.FormatWAV},
			{nil, "audio/x-wav", decoder.FormatWAV},
			{nil, "audio/mpeg; charset=binary", decoder.FormatMP3},
			{[]byte("RIFF0000WAVEfmt "), "", decoder.FormatWAV},
			{[]byte("ID3\x04"), "", decoder.FormatMP3},
			{[]byte{0xFF, 0xFB, 0x90}, "application/octet-stream", decoder.FormatMP3},
			{[]byte("plain"), "", ""},
		}
		for _, c := range cases {
			So(decoder.Detect(c.data, c.hint), ShouldEqual, c.want)
		}
	})
}

func TestSilentStereo(t *testing.T) {
	_ = logger.Init()

	Convey("Given a silent stereo recording", t, func() {
		data, err := testclips.Clip{DurationMS: 200}.WAV()
		So(err, ShouldBeNil)

		caller, agent, err := decoder.New().Decode(data, "wav")

		Convey("Then every frame is digital silence", func() {
			So(err, ShouldBeNil)
			for i := 0; i < caller.Len(); i++ {
				So(math.IsInf(caller.Frame(i).DBFS, -1), ShouldBeTrue)
				So(math.IsInf(agent.Frame(i).DBFS, -1), ShouldBeTrue)
			}
		})
	})
}
