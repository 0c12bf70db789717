// Package report turns a frozen set of turn measurements into an analysis report.
package report

import (
	"time"

	"github.com/okian/turnlat/internal/domain/model"
)

// Report configuration constants.
const (
	DefaultTargetP95MS = 600.0
	DefaultHighBracket = 0.7
	hoursPerDay        = 24
	percent            = 100.0
)

// Status values.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// Verdict is the compliance outcome of a run.
type Verdict string

// Verdict values.
const (
	VerdictPass   Verdict = "PASS"
	VerdictFail   Verdict = "FAIL"
	VerdictNoData Verdict = "NO_DATA"
)

// Summary holds RTT order statistics in milliseconds.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
}

// QualityStats describes the score distribution of the measurements.
type QualityStats struct {
	MeanQuality       float64 `json:"mean_quality"`
	MeanConfidence    float64 `json:"mean_confidence"`
	HighQualityPct    float64 `json:"high_quality_pct"`
	HighConfidencePct float64 `json:"high_confidence_pct"`
}

// HourBucket groups measurements by hour of day.
type HourBucket struct {
	Hour      int     `json:"hour"`
	Count     int     `json:"count"`
	MeanRTTMS float64 `json:"mean_rtt_ms"`
}

// Compliance is the latency target check.
type Compliance struct {
	TargetP95MS float64 `json:"target_p95_ms"`
	P95MS       float64 `json:"p95_ms"`
	Verdict     Verdict `json:"verdict"`
}

// Recordings is the per-run recording bookkeeping.
type Recordings struct {
	Listed     int            `json:"listed"`
	Duplicates int            `json:"duplicates"`
	Analyzed   int            `json:"analyzed"`
	Skipped    int            `json:"skipped"`
	SkippedBy  map[string]int `json:"skipped_by_reason,omitempty"`
}

// Thresholds echoes the detector settings the run used.
type Thresholds struct {
	ThresholdDB  float64 `json:"threshold_db"`
	MinSustainMS int     `json:"min_sustain_ms"`
	MaxWindowMS  int     `json:"max_window_ms"`
	StepMS       int     `json:"step_ms"`
}

// Meta is run context copied into the report verbatim.
type Meta struct {
	RunID       string
	GeneratedAt time.Time
	Window      model.Window
	Thresholds  Thresholds
	Recordings  Recordings
}

// Report is the analysis result of one run.
type Report struct {
	RunID          string       `json:"run_id"`
	GeneratedAt    time.Time    `json:"generated_at"`
	WindowStart    *time.Time   `json:"window_start,omitempty"`
	WindowEnd      *time.Time   `json:"window_end,omitempty"`
	Status         string       `json:"status"`
	Thresholds     Thresholds   `json:"thresholds"`
	Recordings     Recordings   `json:"recordings"`
	Latency        Summary      `json:"latency"`
	HighQuality    *Summary     `json:"high_quality,omitempty"`
	HighConfidence *Summary     `json:"high_confidence,omitempty"`
	Quality        QualityStats `json:"quality"`
	Hourly         []HourBucket `json:"hourly"`
	Compliance     Compliance   `json:"compliance"`
}

// Passed reports whether the run met the latency target.
func (r *Report) Passed() bool { return r.Compliance.Verdict == VerdictPass }

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithTargetP95 sets the p95 latency target in milliseconds.
func WithTargetP95(ms float64) Option {
	return func(g *Generator) {
		if ms > 0 {
			g.targetP95MS = ms
		}
	}
}

// WithHighBracket sets the score above which a measurement counts as high quality or confidence.
func WithHighBracket(v float64) Option {
	return func(g *Generator) {
		if v >= 0 && v < 1 {
			g.highBracket = v
		}
	}
}

// Generator builds reports. It holds no state between calls.
type Generator struct {
	targetP95MS float64
	highBracket float64
}

// NewGenerator creates a generator with configuration options.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		targetP95MS: DefaultTargetP95MS,
		highBracket: DefaultHighBracket,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the report for measurements. An empty input yields a
// no_data report with a NO_DATA verdict.
func (g *Generator) Generate(measurements []model.TurnMeasurement, meta Meta) *Report {
	r := &Report{
		RunID:       meta.RunID,
		GeneratedAt: meta.GeneratedAt,
		Thresholds:  meta.Thresholds,
		Recordings:  meta.Recordings,
		Hourly:      []HourBucket{},
		Compliance:  Compliance{TargetP95MS: g.targetP95MS},
	}
	if !meta.Window.Start.IsZero() {
		start := meta.Window.Start
		r.WindowStart = &start
	}
	if !meta.Window.End.IsZero() {
		end := meta.Window.End
		r.WindowEnd = &end
	}

	if len(measurements) == 0 {
		r.Status = StatusNoData
		r.Compliance.Verdict = VerdictNoData
		return r
	}
	r.Status = StatusOK

	n := float64(len(measurements))
	all := make([]float64, 0, len(measurements))
	var highQ, highC []float64
	var sumQ, sumC float64
	for _, m := range measurements {
		rtt := float64(m.RTTMS)
		all = append(all, rtt)
		sumQ += m.Quality
		sumC += m.Confidence
		if m.Quality > g.highBracket {
			highQ = append(highQ, rtt)
		}
		if m.Confidence > g.highBracket {
			highC = append(highC, rtt)
		}
	}

	r.Latency = Summarize(all)
	r.HighQuality = subset(highQ)
	r.HighConfidence = subset(highC)
	r.Quality = QualityStats{
		MeanQuality:       sumQ / n,
		MeanConfidence:    sumC / n,
		HighQualityPct:    float64(len(highQ)) / n * percent,
		HighConfidencePct: float64(len(highC)) / n * percent,
	}
	r.Hourly = hourly(measurements)

	r.Compliance.P95MS = r.Latency.P95
	if r.Latency.P95 < g.targetP95MS {
		r.Compliance.Verdict = VerdictPass
	} else {
		r.Compliance.Verdict = VerdictFail
	}
	return r
}

func subset(values []float64) *Summary {
	if len(values) == 0 {
		return nil
	}
	s := Summarize(values)
	return &s
}

// hourly groups by the hour of each timestamp as supplied; no zone conversion.
func hourly(measurements []model.TurnMeasurement) []HourBucket {
	var count [hoursPerDay]int
	var sum [hoursPerDay]float64
	for _, m := range measurements {
		h := m.Timestamp.Hour()
		count[h]++
		sum[h] += float64(m.RTTMS)
	}

	out := make([]HourBucket, 0, hoursPerDay)
	for h := 0; h < hoursPerDay; h++ {
		if count[h] == 0 {
			continue
		}
		out = append(out, HourBucket{Hour: h, Count: count[h], MeanRTTMS: sum[h] / float64(count[h])})
	}
	return out
}
