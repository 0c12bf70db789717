package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/turnlat/internal/adapters/export"
	"github.com/okian/turnlat/internal/adapters/http/api"
	"github.com/okian/turnlat/internal/adapters/source"
	"github.com/okian/turnlat/internal/app"
	"github.com/okian/turnlat/internal/config"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitFatal  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize logging; reconfigured once the config is known.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFatal
	}

	cliFlags := flag.NewFlagSet("turnlat", flag.ContinueOnError)
	overrides := registerFlags(cliFlags)
	configPath := cliFlags.String("config", "", "YAML config file (overrides TURNLAT_CONFIG)")
	if err := cliFlags.Parse(os.Args[1:]); err != nil {
		return exitFatal
	}
	if *configPath != "" {
		_ = os.Setenv(config.EnvConfig, *configPath)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env -> flags)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return exitFatal
	}
	overrides.apply(cliFlags, cfg)

	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFatal
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logger.Error(err))
		return exitFatal
	}

	src, err := newSource(cfg)
	if err != nil {
		log.Error(ctx, "failed to create recording source", logger.Error(err))
		return exitFatal
	}

	opts := []app.Option{
		app.WithLogger(log.Named("analyzer")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithThresholds(report.Thresholds{
			ThresholdDB:  cfg.ThresholdDB,
			MinSustainMS: cfg.MinSustainMS,
			MaxWindowMS:  cfg.MaxWindowMS,
			StepMS:       cfg.FrameStepMS,
		}),
		app.WithTargetP95(cfg.TargetP95MS),
		app.WithCSVPath(cfg.CSVPath),
		app.WithReportPath(cfg.ReportPath),
		app.WithPushgateway(cfg.PushgatewayURL, cfg.PushJob),
	}
	if cfg.SQLitePath != "" {
		sink, err := export.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Warn(ctx, "sqlite sink disabled", logger.String("path", cfg.SQLitePath), logger.Error(err))
		} else {
			defer func() { _ = sink.Close() }()
			opts = append(opts, app.WithSink(sink))
		}
	}
	analyzer := app.New(src, opts...)

	if cfg.Schedule != "" {
		return runScheduled(ctx, cfg, analyzer)
	}
	return runOnce(ctx, cfg, analyzer)
}

func newSource(cfg *config.Config) (source.Source, error) {
	opts := []source.Option{
		source.WithLogger(logger.Get().Named("source")),
		source.WithFetchRate(cfg.FetchRPS),
		source.WithRetries(cfg.FetchRetries, 0),
		source.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	}
	switch cfg.Source {
	case config.SourceDir:
		return source.NewDir(cfg.Dir, opts...)
	default:
		opts = append(opts, source.WithBaseURL(cfg.TwilioBaseURL), source.WithFormat(cfg.RecordingFormat))
		return source.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, opts...)
	}
}

func runOnce(ctx context.Context, cfg *config.Config, analyzer *app.Analyzer) int {
	log := logger.Get()
	start, end, err := cfg.Window(time.Now())
	if err != nil {
		log.Error(ctx, "invalid analysis window", logger.Error(err))
		return exitFatal
	}

	res, err := analyzer.Run(ctx, model.Window{Start: start, End: end})
	if err != nil {
		log.Error(ctx, "analysis failed", logger.Error(err))
		return exitFatal
	}

	rep := res.Report
	log.Info(ctx, "turn latency verdict",
		logger.String("verdict", string(rep.Compliance.Verdict)),
		logger.Float64("p95_ms", rep.Latency.P95),
		logger.Float64("target_p95_ms", rep.Compliance.TargetP95MS),
		logger.Int("turns", rep.Latency.Count),
		logger.Int("recordings", rep.Recordings.Analyzed),
		logger.Int("skipped", rep.Recordings.Skipped))

	if cfg.Strict && !rep.Passed() {
		return exitFailed
	}
	return exitOK
}

func runScheduled(ctx context.Context, cfg *config.Config, analyzer *app.Analyzer) int {
	log := logger.Get()
	sched, err := app.NewScheduler(analyzer, cfg.Schedule, cfg.Lookback, app.WithSchedulerLogger(log.Named("scheduler")))
	if err != nil {
		log.Error(ctx, "invalid schedule", logger.Error(err))
		return exitFatal
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(sched, api.WithLogger(log.Named("http"))).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		log.Info(ctx, "starting status server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "status server failed", logger.Error(err))
		}
	}()

	_ = sched.Run(ctx)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return exitOK
}
