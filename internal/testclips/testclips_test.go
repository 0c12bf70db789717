package testclips_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/adapters/source"
	"github.com/okian/turnlat/internal/app"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/testclips"
	"github.com/okian/turnlat/pkg/logger"
)

func TestClip(t *testing.T) {
	Convey("Given a clip with one burst per channel", t, func() {
		clip := testclips.Clip{
			DurationMS: 1000,
			Caller:     []testclips.Segment{{StartMS: 100, EndMS: 300, DBFS: -20}},
			Agent:      []testclips.Segment{{StartMS: 500, EndMS: 700, DBFS: -12}},
		}

		Convey("When rendered into frames", func() {
			caller, agent, err := clip.Channels(model.DefaultStepMS)
			So(err, ShouldBeNil)

			Convey("Then burst frames sit at the segment level", func() {
				So(caller.Len(), ShouldEqual, 100)
				So(caller.Frame(10).DBFS, ShouldAlmostEqual, -20, 1e-6)
				So(agent.Frame(60).DBFS, ShouldAlmostEqual, -12, 1e-6)
			})

			Convey("Then frames outside the bursts are silent", func() {
				So(math.IsInf(caller.Frame(5).DBFS, -1), ShouldBeTrue)
				So(math.IsInf(agent.Frame(80).DBFS, -1), ShouldBeTrue)
			})
		})

		Convey("When encoded as WAV", func() {
			data, err := clip.WAV()

			Convey("Then a RIFF/WAVE container with 16-bit stereo data is produced", func() {
				So(err, ShouldBeNil)
				So(string(data[0:4]), ShouldEqual, "RIFF")
				So(string(data[8:12]), ShouldEqual, "WAVE")
				So(len(data), ShouldBeGreaterThan, 8000*2*2)
			})
		})
	})
}

func TestGenerate(t *testing.T) {
	Convey("Given a fixed seed", t, func() {
		cfg := testclips.GenConfig{Count: 3, Turns: 2, Seed: 42}

		Convey("When generating twice", func() {
			a := testclips.Generate(cfg)
			b := testclips.Generate(cfg)

			Convey("Then the timings match", func() {
				So(a, ShouldHaveLength, 3)
				for i := range a {
					So(a[i].Expected, ShouldResemble, b[i].Expected)
					So(a[i].Clip.Caller, ShouldResemble, b[i].Clip.Caller)
				}
			})

			Convey("Then every turn leaves a response delay inside the window", func() {
				for _, s := range a {
					So(s.Expected, ShouldHaveLength, 2)
					for _, turn := range s.Expected {
						So(turn.RTTMS, ShouldBeGreaterThan, 0)
						So(turn.RTTMS, ShouldBeLessThan, 3000)
						So(turn.UserOnsetMS%10, ShouldEqual, 0)
					}
					So(s.Expected[1].UserOnsetMS, ShouldBeGreaterThan, s.Expected[0].AgentOnsetMS+1000)
				}
			})
		})
	})
}

func TestWriteDir(t *testing.T) {
	_ = logger.Init()

	Convey("Given two generated clips", t, func() {
		dir := t.TempDir()
		specs := testclips.Generate(testclips.GenConfig{Count: 2, Turns: 1, Seed: 7})
		base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

		Convey("When writing them to a directory", func() {
			entries, err := testclips.WriteDir(context.Background(), dir, specs, testclips.WriteOptions{
				Workers:  2,
				BaseTime: base,
				Spacing:  time.Hour,
			})
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)

			Convey("Then each clip exists with its assigned mod time", func() {
				for i, e := range entries {
					info, err := os.Stat(filepath.Join(dir, e.File))
					So(err, ShouldBeNil)
					So(info.ModTime().Equal(base.Add(time.Duration(i)*time.Hour)), ShouldBeTrue)
				}
			})

			Convey("Then the manifest lists the expected turns", func() {
				raw, err := os.ReadFile(filepath.Join(dir, testclips.ManifestName))
				So(err, ShouldBeNil)

				var got []testclips.ManifestEntry
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ID, ShouldEqual, specs[0].ID)
				So(got[0].Expected, ShouldResemble, specs[0].Expected)
			})
		})

		Convey("When the context is already canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := testclips.WriteDir(ctx, dir, specs, testclips.WriteOptions{})

			Convey("Then the write stops with the context error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestVerify(t *testing.T) {
	entries := []testclips.ManifestEntry{{
		ID: "RE1",
		Expected: []testclips.ExpectedTurn{
			{UserOnsetMS: 500, AgentOnsetMS: 1300, RTTMS: 800},
			{UserOnsetMS: 3000, AgentOnsetMS: 3600, RTTMS: 600},
		},
	}}

	Convey("Given a manifest with two turns", t, func() {
		Convey("When both turns were measured within tolerance", func() {
			v, err := testclips.Verify(entries, []model.TurnMeasurement{
				{RecordingID: "RE1", UserOnsetMS: 510, RTTMS: 790},
				{RecordingID: "RE1", UserOnsetMS: 3000, RTTMS: 600},
			}, testclips.DefaultToleranceMS)

			So(err, ShouldBeNil)
			So(v.Expected, ShouldEqual, 2)
			So(v.Matched, ShouldEqual, 2)
			So(v.MaxErrorMS, ShouldEqual, 10)
			So(v.Missing, ShouldBeEmpty)
		})

		Convey("When one turn is off and another recording is unknown", func() {
			v, err := testclips.Verify(entries, []model.TurnMeasurement{
				{RecordingID: "RE1", UserOnsetMS: 500, RTTMS: 800},
				{RecordingID: "RE1", UserOnsetMS: 3000, RTTMS: 900},
				{RecordingID: "RE9", UserOnsetMS: 100, RTTMS: 400},
			}, testclips.DefaultToleranceMS)

			So(errors.Is(err, testclips.ErrVerificationFailed), ShouldBeTrue)
			So(v.Matched, ShouldEqual, 1)
			So(v.Unexpected, ShouldEqual, 2)
			So(v.Missing, ShouldResemble, []testclips.Miss{{RecordingID: "RE1", Expected: entries[0].Expected[1]}})
		})

		Convey("When one measurement could satisfy both turns", func() {
			v, err := testclips.Verify(entries, []model.TurnMeasurement{
				{RecordingID: "RE1", UserOnsetMS: 500, RTTMS: 800},
			}, 5000)

			So(err, ShouldNotBeNil)
			So(v.Matched, ShouldEqual, 1)
		})
	})
}

func TestGeneratedClipsRoundTrip(t *testing.T) {
	_ = logger.Init()

	Convey("Given generated clips written to a directory", t, func() {
		dir := t.TempDir()
		base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		specs := testclips.Generate(testclips.GenConfig{Count: 3, Turns: 3, Seed: 11})
		entries, err := testclips.WriteDir(context.Background(), dir, specs, testclips.WriteOptions{
			Workers:  2,
			BaseTime: base,
			Spacing:  time.Minute,
		})
		So(err, ShouldBeNil)

		Convey("When the directory is analyzed", func() {
			src, err := source.NewDir(dir)
			So(err, ShouldBeNil)
			res, err := app.New(src, app.WithWorkerCount(2)).Run(context.Background(), model.Window{
				Start: base.Add(-time.Minute),
				End:   base.Add(time.Hour),
			})
			So(err, ShouldBeNil)

			Convey("Then every generated turn is measured", func() {
				read, err := testclips.ReadManifest(dir)
				So(err, ShouldBeNil)
				So(read, ShouldHaveLength, len(entries))

				v, err := testclips.Verify(read, res.Measurements, testclips.DefaultToleranceMS)
				So(err, ShouldBeNil)
				So(v.Matched, ShouldEqual, 9)
				So(v.Unexpected, ShouldEqual, 0)
			})
		})
	})
}
