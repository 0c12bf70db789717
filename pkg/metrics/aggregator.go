package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Defaults for the aggregator.
const (
	DefaultNamespace = "turnlat"
	DefaultSubsystem = "analysis"
)

// DefaultRTTBuckets are the turn latency histogram buckets in milliseconds.
var DefaultRTTBuckets = []float64{50, 100, 150, 200, 250, 300, 400, 500, 600, 800, 1000}

// Summary carries the report aggregates recorded once per run.
type Summary struct {
	MeanQuality    float64
	MeanConfidence float64
	P95MS          float64
	// HasData is false for runs that retained no measurements.
	HasData bool
	// Compliant is true when the p95 target was met.
	Compliant bool
}

// Aggregator collects the metrics of a single analysis run in a registry it
// owns. Every run creates a new Aggregator so nothing leaks between runs.
type Aggregator struct {
	namespace   string
	subsystem   string
	buckets     []float64
	constLabels map[string]string
	registry    *prometheus.Registry
	pushClient  *http.Client

	rtt        prometheus.Histogram
	quality    prometheus.Gauge
	confidence prometheus.Gauge
	analyzed   prometheus.Counter
	skipped    *prometheus.CounterVec
	p95        prometheus.Gauge
	compliant  prometheus.Gauge
	lastRun    prometheus.Gauge
}

// NewAggregator creates an aggregator with a fresh registry unless one is supplied.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		namespace: DefaultNamespace,
		subsystem: DefaultSubsystem,
		buckets:   DefaultRTTBuckets,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	if a.pushClient == nil {
		a.pushClient = &http.Client{Timeout: 10 * time.Second}
	}

	f := promauto.With(a.registry)

	a.rtt = f.NewHistogram(prometheus.HistogramOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "turn_rtt_ms",
		Help:        "Response latency between caller and agent speech onsets in milliseconds",
		Buckets:     a.buckets,
		ConstLabels: a.constLabels,
	})

	a.quality = f.NewGauge(prometheus.GaugeOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "audio_quality",
		Help:        "Mean audio quality score of retained measurements",
		ConstLabels: a.constLabels,
	})

	a.confidence = f.NewGauge(prometheus.GaugeOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "onset_confidence",
		Help:        "Mean onset confidence of retained measurements",
		ConstLabels: a.constLabels,
	})

	a.analyzed = f.NewCounter(prometheus.CounterOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "recordings_analyzed_total",
		Help:        "Total number of recordings analyzed",
		ConstLabels: a.constLabels,
	})

	a.skipped = f.NewCounterVec(prometheus.CounterOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "recordings_skipped_total",
		Help:        "Total number of recordings skipped by reason",
		ConstLabels: a.constLabels,
	}, []string{"reason"})

	a.p95 = f.NewGauge(prometheus.GaugeOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "turn_rtt_p95_ms",
		Help:        "95th percentile response latency in milliseconds",
		ConstLabels: a.constLabels,
	})

	a.compliant = f.NewGauge(prometheus.GaugeOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "compliant",
		Help:        "1 when the p95 latency target was met, 0 otherwise, -1 without data",
		ConstLabels: a.constLabels,
	})

	a.lastRun = f.NewGauge(prometheus.GaugeOpts{
		Namespace:   a.namespace,
		Subsystem:   a.subsystem,
		Name:        "last_run_timestamp_seconds",
		Help:        "Unix time at which the run was recorded",
		ConstLabels: a.constLabels,
	})

	return a
}

// ObserveRTT records one retained turn latency.
func (a *Aggregator) ObserveRTT(rttMS int) {
	a.rtt.Observe(float64(rttMS))
}

// IncAnalyzed counts one analyzed recording.
func (a *Aggregator) IncAnalyzed() {
	a.analyzed.Inc()
}

// IncSkipped counts one skipped recording under reason.
func (a *Aggregator) IncSkipped(reason string) {
	a.skipped.WithLabelValues(reason).Inc()
}

// RecordSummary stores the run aggregates.
func (a *Aggregator) RecordSummary(s Summary, at time.Time) {
	a.lastRun.Set(float64(at.Unix()))
	if !s.HasData {
		a.compliant.Set(-1)
		return
	}
	a.quality.Set(s.MeanQuality)
	a.confidence.Set(s.MeanConfidence)
	a.p95.Set(s.P95MS)
	if s.Compliant {
		a.compliant.Set(1)
	} else {
		a.compliant.Set(0)
	}
}

// Registry returns the registry the run's metrics live in.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// Handler exposes the run's metrics in the Prometheus text format.
func (a *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Push sends every metric of the run to a Pushgateway, grouped by the given labels.
func (a *Aggregator) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return ErrNoPushURL
	}
	p := push.New(url, job).Gatherer(a.registry).Client(a.pushClient)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	return nil
}
