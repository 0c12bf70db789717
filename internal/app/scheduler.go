package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/okian/turnlat/internal/config"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

// Runner executes one analysis run.
type Runner interface {
	Run(ctx context.Context, w model.Window) (*RunResult, error)
}

// Scheduler runs the analyzer on a cron schedule. Each tick analyzes the
// lookback period ending at the tick. A tick that fires while the previous
// run is still going is skipped.
type Scheduler struct {
	runner   Runner
	spec     string
	lookback time.Duration
	now      func() time.Time
	logger   logger.Logger

	mu      sync.RWMutex
	latest  *RunResult
	lastErr error
	runs    int
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the time source used to compute windows.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedulerLogger sets a custom logger for the scheduler.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler for a cron spec with a seconds field.
func NewScheduler(r Runner, spec string, lookback time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback must be positive", ErrInvalidSchedule)
	}
	s := &Scheduler{
		runner:   r,
		spec:     spec,
		lookback: lookback,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	if _, err := config.ScheduleParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return s, nil
}

// Run blocks, firing ticks on schedule until ctx is done. It waits for an
// in-flight run to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{ctx: ctx, log: s.logger}
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, s.spec, err)
	}

	s.logger.Info(ctx, "scheduler started", logger.String("schedule", s.spec), logger.Duration("lookback", s.lookback))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info(ctx, "scheduler stopped", logger.Int("runs", s.Runs()))
	return nil
}

// Tick runs one analysis over the lookback period ending now and records the result.
func (s *Scheduler) Tick(ctx context.Context) {
	end := s.now()
	res, err := s.runner.Run(ctx, model.Window{Start: end.Add(-s.lookback), End: end})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastErr = err
	if err != nil {
		s.logger.Error(ctx, "scheduled run failed", logger.Error(err))
		return
	}
	s.latest = res
}

// Latest returns the newest successful run's report and metrics, or nils before the first one.
func (s *Scheduler) Latest() (*report.Report, prometheus.Gatherer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, nil
	}
	return s.latest.Report, s.latest.Metrics.Registry()
}

// LastError returns the error of the most recent tick, if it failed.
func (s *Scheduler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Runs returns how many ticks have completed.
func (s *Scheduler) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

// cronLogger routes cron's own logging through the service logger.
type cronLogger struct {
	ctx context.Context
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(l.ctx, "cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(l.ctx, "cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
