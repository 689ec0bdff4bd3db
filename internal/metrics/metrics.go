// Package metrics exposes Prometheus instrumentation for the generation
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the service metrics.
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	upstreamRequests   *prometheus.CounterVec
	streamDeltas       prometheus.Counter
	subBatchFailures   prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
}

// NewCollector registers the metrics with reg. A nil reg uses the default
// registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total content generation requests",
			},
			[]string{"kind", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Content generation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests sent to the generative-language API",
			},
			[]string{"status"},
		),
		streamDeltas: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_deltas_total",
				Help:      "Text deltas emitted by the stream decoder",
			},
		),
		subBatchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sub_batch_failures_total",
				Help:      "Sub-batch tasks that contributed zero items",
			},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Record cache hits",
			},
		),
		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Record cache misses",
			},
		),
	}
}

// RecordGeneration tracks one finished generation request.
func (c *Collector) RecordGeneration(kind, status string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(kind, status).Inc()
	c.generationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordUpstream tracks one upstream request outcome.
func (c *Collector) RecordUpstream(status string) {
	c.upstreamRequests.WithLabelValues(status).Inc()
}

// RecordStreamDelta counts one decoder delta emission.
func (c *Collector) RecordStreamDelta() { c.streamDeltas.Inc() }

// RecordSubBatchFailure counts one swallowed sub-batch failure.
func (c *Collector) RecordSubBatchFailure() { c.subBatchFailures.Inc() }

// RecordCacheHit counts one record cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss counts one record cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }
