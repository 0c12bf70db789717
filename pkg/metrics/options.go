// Package metrics aggregates the Prometheus metrics of one analysis run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(a *Aggregator) {
		if namespace != "" {
			a.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(a *Aggregator) {
		if subsystem != "" {
			a.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets the turn latency histogram buckets in milliseconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(a *Aggregator) {
		if len(buckets) > 0 {
			a.buckets = buckets
		}
	}
}

// WithConstLabels attaches constant labels to every metric.
func WithConstLabels(labels map[string]string) Option {
	return func(a *Aggregator) {
		if labels != nil {
			a.constLabels = labels
		}
	}
}

// WithRegistry registers the metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Aggregator) {
		if reg != nil {
			a.registry = reg
		}
	}
}

// WithPushClient sets the HTTP client used for Pushgateway pushes.
func WithPushClient(c *http.Client) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.pushClient = c
		}
	}
}
