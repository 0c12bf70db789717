// Package worker runs recording analysis jobs off the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/turnlat/internal/adapters/decoder"
	"github.com/okian/turnlat/internal/adapters/mq/queue"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

// Fetcher downloads a recording's audio.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, string, error)
}

// Analyzer turns decoded channels into turn measurements.
type Analyzer interface {
	Measure(rec model.Recording, caller, agent model.AudioChannel) ([]model.TurnMeasurement, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker processes one job at a time and reports a typed outcome per job.
type InMemoryWorker struct {
	queue    Queue
	fetcher  Fetcher
	decoder  decoder.Decoder
	analyzer Analyzer
	name     string
	logger   logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, f Fetcher, d decoder.Decoder, a Analyzer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		fetcher:  f,
		decoder:  d,
		analyzer: a,
		name:     "worker",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run consumes jobs until the queue is closed and drained, sending one
// outcome per job to out. Once ctx is canceled the remaining jobs are
// drained as canceled without being fetched. It returns ctx.Err() in that case.
func (w *InMemoryWorker) Run(ctx context.Context, out chan<- model.RecordingOutcome) error {
	for job := range w.queue.Dequeue(ctx) {
		var o model.RecordingOutcome
		if ctx.Err() != nil {
			o = model.RecordingOutcome{Recording: job, Reason: model.SkipCanceled, Err: ctx.Err()}
		} else {
			o = w.Process(ctx, job)
		}
		out <- o
	}
	return ctx.Err()
}

// Process fetches, decodes and scans one recording. Failures are reported in
// the outcome, never returned.
func (w *InMemoryWorker) Process(ctx context.Context, rec model.Recording) model.RecordingOutcome { //nolint:gocritic // hugeParam: Recording is passed by value like queue jobs
	start := time.Now()
	log := w.logger.With(logger.String("recording_id", rec.ID))

	skip := func(reason model.SkipReason, err error) model.RecordingOutcome {
		if ctx.Err() != nil {
			reason = model.SkipCanceled
		}
		log.Warn(ctx, "recording skipped",
			logger.String("reason", string(reason)),
			logger.Error(err))
		return model.RecordingOutcome{Recording: rec, Reason: reason, Err: err}
	}

	data, contentType, err := w.fetcher.Fetch(ctx, rec.FetchURI)
	if err != nil {
		return skip(model.SkipFetchFailed, fmt.Errorf("fetch %s: %w", rec.ID, err))
	}

	hint := rec.Format
	if hint == "" {
		hint = contentType
	}
	caller, agent, err := w.decoder.Decode(data, hint)
	switch {
	case errors.Is(err, decoder.ErrUnsupportedChannels):
		return skip(model.SkipUnsupportedChannels, err)
	case err != nil:
		return skip(model.SkipDecodeFailed, fmt.Errorf("decode %s: %w", rec.ID, err))
	}

	ms, err := w.analyzer.Measure(rec, caller, agent)
	if err != nil {
		return skip(model.SkipDecodeFailed, fmt.Errorf("scan %s: %w", rec.ID, err))
	}

	log.Debug(ctx, "recording analyzed",
		logger.Int("pairings", len(ms)),
		logger.Int("duration_ms", caller.DurationMS()),
		logger.Duration("took", time.Since(start)))
	return model.RecordingOutcome{Recording: rec, Measurements: ms}
}

// Pool runs a fixed set of workers over the same queue.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates a worker pool. A non-positive count uses one worker per CPU.
func NewPool(workerCount int, q Queue, f Fetcher, d decoder.Decoder, a Analyzer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, f, d, a, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run starts every worker and blocks until all of them have drained the
// queue. The caller owns out and closes it after Run returns.
func (p *Pool) Run(ctx context.Context, out chan<- model.RecordingOutcome) error {
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))

	var g errgroup.Group
	for _, w := range p.workers {
		g.Go(func() error { return w.Run(ctx, out) })
	}
	err := g.Wait()

	p.logger.Info(ctx, "worker pool finished")
	return err
}
