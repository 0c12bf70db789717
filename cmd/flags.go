package main

import (
	"flag"
	"time"

	"github.com/okian/turnlat/internal/config"
)

// flagOverrides holds command-line values that win over file and env settings.
type flagOverrides struct {
	source       *string
	dir          *string
	since        *string
	until        *string
	lookback     *time.Duration
	thresholdDB  *float64
	minSustainMS *int
	maxWindowMS  *int
	workers      *int
	csv          *string
	report       *string
	sqlite       *string
	pushgateway  *string
	schedule     *string
	addr         *string
	strict       *bool
	logLevel     *string
}

func registerFlags(fs *flag.FlagSet) *flagOverrides {
	d := config.New()
	return &flagOverrides{
		source:       fs.String("source", d.Source, "Recording source: twilio or dir"),
		dir:          fs.String("dir", d.Dir, "Recordings directory for -source dir"),
		since:        fs.String("since", d.Since, "Window start (RFC 3339); default is -lookback before -until"),
		until:        fs.String("until", d.Until, "Window end (RFC 3339); default is now"),
		lookback:     fs.Duration("lookback", d.Lookback, "Window length when -since is not set"),
		thresholdDB:  fs.Float64("threshold-db", d.ThresholdDB, "Speech energy floor in dBFS"),
		minSustainMS: fs.Int("min-sustain-ms", d.MinSustainMS, "Speech needed to confirm an onset, in ms"),
		maxWindowMS:  fs.Int("max-window-ms", d.MaxWindowMS, "Longest accepted response delay, in ms"),
		workers:      fs.Int("workers", d.WorkerCount, "Recordings analyzed in parallel"),
		csv:          fs.String("csv", d.CSVPath, "Measurements CSV path (empty disables)"),
		report:       fs.String("report", d.ReportPath, "JSON report path (empty disables)"),
		sqlite:       fs.String("sqlite", d.SQLitePath, "SQLite database that accumulates runs (empty disables)"),
		pushgateway:  fs.String("pushgateway", d.PushgatewayURL, "Prometheus Pushgateway URL (empty disables)"),
		schedule:     fs.String("schedule", d.Schedule, "Cron spec with seconds; runs repeatedly and serves status"),
		addr:         fs.String("addr", d.Addr, "Status server address in scheduled mode"),
		strict:       fs.Bool("strict", d.Strict, "Exit 1 when the verdict is FAIL or NO_DATA"),
		logLevel:     fs.String("log-level", d.LogLevel, "Log level: debug, info, warn, error"),
	}
}

// apply copies every flag that was set explicitly onto cfg.
func (o *flagOverrides) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source = *o.source
		case "dir":
			cfg.Dir = *o.dir
		case "since":
			cfg.Since = *o.since
		case "until":
			cfg.Until = *o.until
		case "lookback":
			cfg.Lookback = *o.lookback
		case "threshold-db":
			cfg.ThresholdDB = *o.thresholdDB
		case "min-sustain-ms":
			cfg.MinSustainMS = *o.minSustainMS
		case "max-window-ms":
			cfg.MaxWindowMS = *o.maxWindowMS
		case "workers":
			cfg.WorkerCount = *o.workers
		case "csv":
			cfg.CSVPath = *o.csv
		case "report":
			cfg.ReportPath = *o.report
		case "sqlite":
			cfg.SQLitePath = *o.sqlite
		case "pushgateway":
			cfg.PushgatewayURL = *o.pushgateway
		case "schedule":
			cfg.Schedule = *o.schedule
		case "addr":
			cfg.Addr = *o.addr
		case "strict":
			cfg.Strict = *o.strict
		case "log-level":
			cfg.LogLevel = *o.logLevel
		}
	})
}
