// Package config defines the analyzer configuration and how it is loaded.
//
// Conventions:
// - Keys are flat and match the koanf tags on Config.
// - New returns a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
)

// Recording sources.
const (
	SourceTwilio = "twilio"
	SourceDir    = "dir"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Source selects where recordings come from: twilio or dir.
	Source string `koanf:"source"`
	// Dir is the recordings directory for the dir source.
	Dir string `koanf:"dir"`

	TwilioAccountSID string `koanf:"twilio_account_sid"`
	TwilioAuthToken  string `koanf:"twilio_auth_token"`
	TwilioBaseURL    string `koanf:"twilio_base_url"`
	// RecordingFormat is the media format requested from Twilio: wav or mp3.
	RecordingFormat string `koanf:"recording_format"`

	// Since and Until bound the analysis window (RFC 3339). When Since is
	// empty the window is the Lookback period ending at Until (or now).
	Since    string        `koanf:"since"`
	Until    string        `koanf:"until"`
	Lookback time.Duration `koanf:"lookback"`

	// Onset detection and matching thresholds.
	ThresholdDB  float64 `koanf:"threshold_db"`
	MinSustainMS int     `koanf:"min_sustain_ms"`
	MaxWindowMS  int     `koanf:"max_window_ms"`
	FrameStepMS  int     `koanf:"frame_step_ms"`

	// TargetP95MS is the compliance target; p95 must be strictly below it.
	TargetP95MS float64 `koanf:"target_p95_ms"`

	// WorkerCount sets the number of recordings analyzed in parallel.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize caps the recording IDs remembered for deduplication.
	DedupeSize int `koanf:"dedupe_size"`

	// FetchRPS limits media downloads per second; 0 disables the limit.
	FetchRPS     float64       `koanf:"fetch_rps"`
	FetchRetries int           `koanf:"fetch_retries"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// Artifact paths. Empty disables the artifact.
	CSVPath    string `koanf:"csv_path"`
	ReportPath string `koanf:"report_path"`
	SQLitePath string `koanf:"sqlite_path"`

	// PushgatewayURL enables pushing run metrics when set.
	PushgatewayURL string `koanf:"pushgateway_url"`
	PushJob        string `koanf:"push_job"`

	// Schedule is a cron spec with seconds; empty means a single run.
	Schedule string `koanf:"schedule"`
	// Addr is the status server listen address in scheduled mode.
	Addr string `koanf:"addr"`

	// Strict makes FAIL and NO_DATA verdicts exit non-zero.
	Strict bool `koanf:"strict"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Source:          SourceTwilio,
		TwilioBaseURL:   "https://api.twilio.com",
		RecordingFormat: "wav",
		Lookback:        24 * time.Hour,
		ThresholdDB:     -30,
		MinSustainMS:    100,
		MaxWindowMS:     3000,
		FrameStepMS:     10,
		TargetP95MS:     600,
		WorkerCount:     runtime.NumCPU(),
		DedupeSize:      100_000,
		FetchRPS:        5,
		FetchRetries:    3,
		FetchTimeout:    60 * time.Second,
		CSVPath:         "latency.csv",
		ReportPath:      "report.json",
		PushJob:         "turnlat",
		Addr:            ":9300",
	}
}

// Window resolves the analysis window relative to now.
func (c *Config) Window(now time.Time) (start, end time.Time, err error) {
	end = now
	if c.Until != "" {
		if end, err = time.Parse(time.RFC3339, c.Until); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: until: %v", ErrInvalidConfig, err)
		}
	}
	if c.Since != "" {
		if start, err = time.Parse(time.RFC3339, c.Since); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: since: %v", ErrInvalidConfig, err)
		}
	} else {
		start = end.Add(-c.Lookback)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window start %s is not before end %s",
			ErrInvalidConfig, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// Validate checks the configuration for values the analyzer cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	switch c.Source {
	case SourceTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
			return invalid("twilio source needs account sid and auth token")
		}
		if c.RecordingFormat != "wav" && c.RecordingFormat != "mp3" {
			return invalid("recording_format must be wav or mp3, got %q", c.RecordingFormat)
		}
	case SourceDir:
		if c.Dir == "" {
			return invalid("dir source needs a directory")
		}
	default:
		return invalid("unknown source %q", c.Source)
	}

	switch {
	case c.ThresholdDB >= 0:
		return invalid("threshold_db must be negative, got %v", c.ThresholdDB)
	case c.MinSustainMS <= 0:
		return invalid("min_sustain_ms must be positive, got %d", c.MinSustainMS)
	case c.MaxWindowMS <= c.MinSustainMS:
		return invalid("max_window_ms (%d) must exceed min_sustain_ms (%d)", c.MaxWindowMS, c.MinSustainMS)
	case c.FrameStepMS <= 0:
		return invalid("frame_step_ms must be positive, got %d", c.FrameStepMS)
	case c.FrameStepMS > c.MinSustainMS:
		return invalid("frame_step_ms (%d) must not exceed min_sustain_ms (%d)", c.FrameStepMS, c.MinSustainMS)
	case c.TargetP95MS <= 0:
		return invalid("target_p95_ms must be positive, got %v", c.TargetP95MS)
	case c.WorkerCount < 1:
		return invalid("worker_count must be at least 1, got %d", c.WorkerCount)
	case c.FetchRPS < 0:
		return invalid("fetch_rps must not be negative, got %v", c.FetchRPS)
	case c.FetchRetries < 0:
		return invalid("fetch_retries must not be negative, got %d", c.FetchRetries)
	case c.Since == "" && c.Lookback <= 0:
		return invalid("lookback must be positive when since is not set")
	}

	if _, _, err := c.Window(time.Now()); err != nil {
		return err
	}
	if c.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Schedule); err != nil {
			return invalid("schedule %q: %v", c.Schedule, err)
		}
		if c.Addr == "" {
			return invalid("addr must not be empty in scheduled mode")
		}
	}
	return nil
}

// ScheduleParser parses cron specs with a leading seconds field.
var ScheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)
