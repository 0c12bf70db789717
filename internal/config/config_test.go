package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/config"
)

func validDirConfig() *config.Config {
	cfg := config.New()
	cfg.Source = config.SourceDir
	cfg.Dir = "/recordings"
	return cfg
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have the documented analysis defaults", func() {
			convey.So(cfg.ThresholdDB, convey.ShouldEqual, -30.0)
			convey.So(cfg.MinSustainMS, convey.ShouldEqual, 100)
			convey.So(cfg.MaxWindowMS, convey.ShouldEqual, 3000)
			convey.So(cfg.FrameStepMS, convey.ShouldEqual, 10)
			convey.So(cfg.TargetP95MS, convey.ShouldEqual, 600.0)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Lookback, convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.Source, convey.ShouldEqual, config.SourceTwilio)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid dir configuration", t, func() {
		cfg := validDirConfig()

		convey.So(cfg.Validate(), convey.ShouldBeNil)

		invalid := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"unknown source", func(c *config.Config) { c.Source = "s3" }},
			{"dir source without dir", func(c *config.Config) { c.Dir = "" }},
			{"non-negative threshold", func(c *config.Config) { c.ThresholdDB = 0 }},
			{"zero sustain", func(c *config.Config) { c.MinSustainMS = 0 }},
			{"window below sustain", func(c *config.Config) { c.MaxWindowMS = 100 }},
			{"zero frame step", func(c *config.Config) { c.FrameStepMS = 0 }},
			{"frame step wider than sustain", func(c *config.Config) { c.FrameStepMS = 1000 }},
			{"no workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"negative fetch rate", func(c *config.Config) { c.FetchRPS = -1 }},
			{"negative retries", func(c *config.Config) { c.FetchRetries = -1 }},
			{"unparseable since", func(c *config.Config) { c.Since = "yesterday" }},
			{"inverted window", func(c *config.Config) { c.Since, c.Until = "2024-03-02T00:00:00Z", "2024-03-01T00:00:00Z" }},
			{"bad schedule", func(c *config.Config) { c.Schedule = "every minute" }},
			{"five field schedule", func(c *config.Config) { c.Schedule = "*/5 * * * *" }},
			{"schedule without addr", func(c *config.Config) { c.Schedule, c.Addr = "0 */5 * * * *", "" }},
			{"zero lookback", func(c *config.Config) { c.Lookback = 0 }},
		}
		for _, tc := range invalid {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)

				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When it has a six field schedule", func() {
			cfg.Schedule = "0 */5 * * * *"

			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a twilio configuration", t, func() {
		cfg := config.New()

		convey.Convey("When credentials are missing", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When credentials are present", func() {
			cfg.TwilioAccountSID, cfg.TwilioAuthToken = "AC1", "token"

			convey.So(cfg.Validate(), convey.ShouldBeNil)

			convey.Convey("And the format is unsupported", func() {
				cfg.RecordingFormat = "ogg"

				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfig_Window(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	convey.Convey("Given only a lookback", t, func() {
		cfg := config.New()
		cfg.Lookback = 6 * time.Hour

		start, end, err := cfg.Window(now)

		convey.So(err, convey.ShouldBeNil)
		convey.So(end.Equal(now), convey.ShouldBeTrue)
		convey.So(start.Equal(now.Add(-6*time.Hour)), convey.ShouldBeTrue)
	})

	convey.Convey("Given explicit bounds", t, func() {
		cfg := config.New()
		cfg.Since, cfg.Until = "2024-03-01T00:00:00Z", "2024-03-01T12:00:00+02:00"

		start, end, err := cfg.Window(now)

		convey.So(err, convey.ShouldBeNil)
		convey.So(start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		convey.So(end.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
	})

	convey.Convey("Given an until without since", t, func() {
		cfg := config.New()
		cfg.Until = "2024-03-01T06:00:00Z"
		cfg.Lookback = time.Hour

		start, _, err := cfg.Window(now)

		convey.So(err, convey.ShouldBeNil)
		convey.So(start.Equal(time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
	})
}
