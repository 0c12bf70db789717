package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/turnlat/internal/adapters/source"
	"github.com/okian/turnlat/internal/app"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/testclips"
	"github.com/okian/turnlat/pkg/logger"
)

// Default configuration constants.
const (
	defaultCount   = 20
	defaultTurns   = 4
	defaultSpacing = time.Second
	defaultTimeout = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		out       = flag.String("out", "clips", "Directory to write the recordings into")
		count     = flag.Int("count", defaultCount, "Number of recordings to generate")
		turns     = flag.Int("turns", defaultTurns, "Caller/agent turns per recording")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Seed for the turn layout")
		minDelay  = flag.Int("min-delay-ms", 200, "Shortest silence before the agent answers")
		maxDelay  = flag.Int("max-delay-ms", 1200, "Longest silence before the agent answers")
		workers   = flag.Int("workers", runtime.NumCPU(), "Concurrent clip writers and analyzers")
		verify    = flag.Bool("verify", false, "Analyze the written directory and compare against the manifest")
		tolerance = flag.Int("tolerance-ms", testclips.DefaultToleranceMS, "Allowed onset error when verifying")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 2
	}
	log := logger.Get().Named("test-clips")

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	specs := testclips.Generate(testclips.GenConfig{
		Count:      *count,
		Turns:      *turns,
		MinDelayMS: *minDelay,
		MaxDelayMS: *maxDelay,
		Seed:       *seed,
	})

	// Stamp clips in the recent past so a default lookback window covers them.
	base := time.Now().Add(-time.Duration(len(specs)+1) * defaultSpacing).Truncate(time.Second)
	entries, err := testclips.WriteDir(ctx, *out, specs, testclips.WriteOptions{
		Workers:  *workers,
		BaseTime: base,
		Spacing:  defaultSpacing,
	})
	if err != nil {
		log.Error(ctx, "failed to write clips", logger.Error(err))
		return 1
	}
	log.Info(ctx, "clips generated",
		logger.String("dir", *out),
		logger.Int("count", len(entries)),
		logger.Int64("seed", *seed))

	if !*verify {
		return 0
	}

	src, err := source.NewDir(*out)
	if err != nil {
		log.Error(ctx, "failed to open clip directory", logger.Error(err))
		return 1
	}
	res, err := app.New(src, app.WithWorkerCount(*workers)).Run(ctx, model.Window{
		Start: base.Add(-time.Minute),
		End:   time.Now().Add(time.Minute),
	})
	if err != nil {
		log.Error(ctx, "analysis failed", logger.Error(err))
		return 1
	}

	v, err := testclips.Verify(entries, res.Measurements, *tolerance)
	log.Info(ctx, "verification finished",
		logger.Int("expected", v.Expected),
		logger.Int("matched", v.Matched),
		logger.Int("unexpected", v.Unexpected),
		logger.Int("max_error_ms", v.MaxErrorMS),
		logger.String("verdict", string(res.Report.Compliance.Verdict)))
	if err != nil {
		for _, m := range v.Missing {
			log.Warn(ctx, "turn not measured",
				logger.String("recording_id", m.RecordingID),
				logger.Int("user_onset_ms", m.Expected.UserOnsetMS),
				logger.Int("rtt_ms", m.Expected.RTTMS))
		}
		log.Error(ctx, "verification failed", logger.Error(err))
		return 1
	}
	return 0
}
