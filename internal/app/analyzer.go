// Package app drives analysis runs: it lists recordings, fans them out to
// workers, builds the report and publishes the run's artifacts.
package app

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/okian/turnlat/internal/adapters/decoder"
	"github.com/okian/turnlat/internal/adapters/export"
	"github.com/okian/turnlat/internal/adapters/mq/queue"
	"github.com/okian/turnlat/internal/adapters/mq/worker"
	"github.com/okian/turnlat/internal/adapters/repository"
	"github.com/okian/turnlat/internal/adapters/source"
	"github.com/okian/turnlat/internal/domain/dedupe"
	"github.com/okian/turnlat/internal/domain/matcher"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/onset"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/internal/domain/scoring"
	"github.com/okian/turnlat/pkg/logger"
	"github.com/okian/turnlat/pkg/metrics"
)

// Default analyzer configuration constants.
const (
	defaultDedupeSize = 100_000
	defaultPushJob    = "turnlat"
)

// RunSink persists a finished run.
type RunSink interface {
	Save(ctx context.Context, r *report.Report, ms []model.TurnMeasurement) error
}

// RunResult is everything one run produced.
type RunResult struct {
	RunID        string
	Report       *report.Report
	Measurements []model.TurnMeasurement
	// Skipped holds the outcome of every recording that produced no measurements.
	Skipped []model.RecordingOutcome
	// Discarded counts measurements rejected by the retention filter.
	Discarded int
	Metrics   *metrics.Aggregator
}

// Analyzer runs the turn-latency analysis over a recording source.
// Each call to Run uses its own store and metrics, so runs never share state.
type Analyzer struct {
	source     source.Source
	decoder    decoder.Decoder
	matcher    *matcher.Matcher
	generator  *report.Generator
	thresholds report.Thresholds

	workerCount int
	dedupeSize  int

	csvPath    string
	reportPath string
	sink       RunSink
	pushURL    string
	pushJob    string

	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithWorkerCount sets how many recordings are analyzed in parallel.
func WithWorkerCount(count int) Option {
	return func(a *Analyzer) {
		if count > 0 {
			a.workerCount = count
		}
	}
}

// WithDedupeSize caps the recording IDs remembered while deduplicating a listing.
func WithDedupeSize(size int) Option {
	return func(a *Analyzer) {
		if size > 0 {
			a.dedupeSize = size
		}
	}
}

// WithThresholds sets the detector, matcher and frame settings.
func WithThresholds(th report.Thresholds) Option {
	return func(a *Analyzer) {
		a.thresholds = th
	}
}

// WithTargetP95 sets the compliance target in milliseconds.
func WithTargetP95(ms float64) Option {
	return func(a *Analyzer) {
		a.generator = report.NewGenerator(report.WithTargetP95(ms))
	}
}

// WithCSVPath writes the retained measurements to path after each run.
func WithCSVPath(path string) Option {
	return func(a *Analyzer) { a.csvPath = path }
}

// WithReportPath writes the JSON report to path after each run.
func WithReportPath(path string) Option {
	return func(a *Analyzer) { a.reportPath = path }
}

// WithSink persists every run to sink.
func WithSink(sink RunSink) Option {
	return func(a *Analyzer) { a.sink = sink }
}

// WithPushgateway pushes run metrics to the Pushgateway at url under job.
func WithPushgateway(url, job string) Option {
	return func(a *Analyzer) {
		a.pushURL = url
		if job != "" {
			a.pushJob = job
		}
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger for the analyzer.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New constructs an Analyzer reading from src.
func New(src source.Source, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:      src,
		generator:   report.NewGenerator(),
		workerCount: runtime.NumCPU(),
		dedupeSize:  defaultDedupeSize,
		pushJob:     defaultPushJob,
		now:         time.Now,
		thresholds: report.Thresholds{
			ThresholdDB:  onset.DefaultThresholdDB,
			MinSustainMS: onset.DefaultMinSustainMS,
			MaxWindowMS:  matcher.DefaultMaxWindowMS,
			StepMS:       model.DefaultStepMS,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("analyzer")
	}

	th := a.thresholds
	a.decoder = decoder.New(decoder.WithFrameStep(th.StepMS), decoder.WithLogger(a.logger.Named("decoder")))
	a.matcher = matcher.New(
		matcher.WithDetector(onset.NewDetector(onset.WithThreshold(th.ThresholdDB), onset.WithMinSustain(th.MinSustainMS))),
		matcher.WithScorer(scoring.NewScorer(scoring.WithThreshold(th.ThresholdDB))),
		matcher.WithMaxWindow(th.MaxWindowMS),
	)
	return a
}

// tally accumulates per-recording outcomes on the collector goroutine.
type tally struct {
	analyzed  int
	skippedBy map[string]int
	skipped   []model.RecordingOutcome
}

func (t *tally) skip(o model.RecordingOutcome, agg *metrics.Aggregator) { //nolint:gocritic // hugeParam: outcomes travel by value
	if t.skippedBy == nil {
		t.skippedBy = map[string]int{}
	}
	t.skippedBy[string(o.Reason)]++
	t.skipped = append(t.skipped, o)
	agg.IncSkipped(string(o.Reason))
}

// Run analyzes every recording the source lists inside w. A listing failure
// aborts the run; per-recording failures are tallied as skips. Exports are
// best effort and only logged when they fail.
func (a *Analyzer) Run(ctx context.Context, w model.Window) (*RunResult, error) { //nolint:gocritic // hugeParam: Window is a small value type
	runID := uuid.NewString()
	log := a.logger.With(logger.String("run_id", runID))
	start := time.Now()

	log.Info(ctx, "run started",
		logger.Time("window_start", w.Start),
		logger.Time("window_end", w.End),
		logger.Int("workers", a.workerCount))

	listed, err := a.source.List(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(a.dedupeSize))
	recs, dups := dedupe.Unique(ctx, seen, listed)
	log.Info(ctx, "listing deduplicated",
		logger.Int("listed", len(listed)),
		logger.Int("duplicates", dups),
		logger.Int("tracked_ids", seen.Size()))

	agg := metrics.NewAggregator()
	store := repository.NewMemoryStore(repository.WithCapacity(len(recs)), repository.WithLogger(log.Named("store")))

	var t tally
	q := queue.NewInMemoryQueue(queue.WithCapacity(max(len(recs), 1)), queue.WithLogger(log.Named("queue")))
	for _, rec := range recs {
		if !q.Enqueue(ctx, rec) {
			t.skip(model.RecordingOutcome{Recording: rec, Reason: model.SkipCanceled, Err: ctx.Err()}, agg)
		}
	}
	_ = q.Close()
	log.Debug(ctx, "jobs queued", logger.Int("queued", q.Len(ctx)), logger.Int("canceled", len(t.skipped)))

	pool := worker.NewPool(a.workerCount, q, a.source, a.decoder, a.matcher, worker.WithLogger(log.Named("worker")))
	out := make(chan model.RecordingOutcome, pool.Size())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for o := range out {
			if o.Skipped() {
				t.skip(o, agg)
				continue
			}
			t.analyzed++
			agg.IncAnalyzed()
			for _, m := range o.Measurements {
				kept, err := store.Append(ctx, m)
				if err != nil {
					log.Error(ctx, "measurement lost", logger.String("recording_id", m.RecordingID), logger.Error(err))
					continue
				}
				if kept {
					agg.ObserveRTT(m.RTTMS)
				}
			}
		}
	}()

	poolErr := pool.Run(ctx, out)
	close(out)
	<-done

	log.Debug(ctx, "analysis finished", logger.Int("retained", store.Len()))
	snap := store.Freeze(ctx)
	if poolErr != nil {
		log.Warn(ctx, "run canceled",
			logger.Int("analyzed", t.analyzed),
			logger.Int("skipped", len(t.skipped)),
			logger.Error(poolErr))
		return nil, fmt.Errorf("run %s: %w", runID, poolErr)
	}

	rep := a.generator.Generate(snap.Measurements, report.Meta{
		RunID:       runID,
		GeneratedAt: a.now(),
		Window:      w,
		Thresholds:  a.thresholds,
		Recordings: report.Recordings{
			Listed:     len(listed),
			Duplicates: dups,
			Analyzed:   t.analyzed,
			Skipped:    len(t.skipped),
			SkippedBy:  t.skippedBy,
		},
	})
	agg.RecordSummary(metrics.Summary{
		MeanQuality:    rep.Quality.MeanQuality,
		MeanConfidence: rep.Quality.MeanConfidence,
		P95MS:          rep.Latency.P95,
		HasData:        rep.Status == report.StatusOK,
		Compliant:      rep.Passed(),
	}, rep.GeneratedAt)

	res := &RunResult{
		RunID:        runID,
		Report:       rep,
		Measurements: snap.Measurements,
		Skipped:      t.skipped,
		Discarded:    snap.Discarded,
		Metrics:      agg,
	}
	a.publish(ctx, log, res)

	log.Info(ctx, "run finished",
		logger.String("status", rep.Status),
		logger.String("verdict", string(rep.Compliance.Verdict)),
		logger.Int("measurements", rep.Latency.Count),
		logger.Float64("p95_ms", rep.Latency.P95),
		logger.Int("analyzed", t.analyzed),
		logger.Int("skipped", len(t.skipped)),
		logger.Int("discarded", snap.Discarded),
		logger.Duration("took", time.Since(start)))
	return res, nil
}

// publish writes the run's artifacts. Failures are logged and never fail the run.
func (a *Analyzer) publish(ctx context.Context, log logger.Logger, res *RunResult) {
	if a.csvPath != "" {
		if err := export.WriteCSVFile(a.csvPath, res.Measurements); err != nil {
			log.Warn(ctx, "csv export failed", logger.String("path", a.csvPath), logger.Error(err))
		}
	}
	if a.reportPath != "" {
		if err := export.WriteReportFile(a.reportPath, res.Report); err != nil {
			log.Warn(ctx, "report export failed", logger.String("path", a.reportPath), logger.Error(err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Save(ctx, res.Report, res.Measurements); err != nil {
			log.Warn(ctx, "run persistence failed", logger.Error(err))
		}
	}
	if a.pushURL != "" {
		err := res.Metrics.Push(ctx, a.pushURL, a.pushJob, map[string]string{"run_id": res.RunID})
		if err != nil {
			log.Warn(ctx, "metrics push failed", logger.String("url", a.pushURL), logger.Error(err))
		}
	}
}
