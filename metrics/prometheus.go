// Package metrics exposes core metric events as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "featurehooks"

// PrometheusRecorder implements core.MetricsRecorder on a dedicated registry.
// Each known metric has a fixed label set; tags outside that set are dropped.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	counters   map[string]counterBinding
	histograms map[string]histogramBinding
}

type counterBinding struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramBinding struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*options)

type options struct {
	registry       *prometheus.Registry
	runtimeMetrics bool
	buckets        []float64
}

// WithRegistry registers collectors on an existing registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithRuntimeCollectors adds the Go and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) {
		o.runtimeMetrics = true
	}
}

// WithDurationBuckets overrides delivery duration buckets, in milliseconds.
func WithDurationBuckets(buckets ...float64) Option {
	return func(o *options) {
		if len(buckets) > 0 {
			o.buckets = buckets
		}
	}
}

func NewPrometheusRecorder(opts ...Option) (*PrometheusRecorder, error) {
	cfg := options{buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	recorder := &PrometheusRecorder{
		registry:   cfg.registry,
		counters:   map[string]counterBinding{},
		histograms: map[string]histogramBinding{},
	}

	recorder.counters[core.MetricIngestTotal] = newCounter(
		"ingest_rows_total", "Delivery rows produced by change-event ingest, by initial status.",
		"status",
	)
	recorder.counters[core.MetricClaimedTotal] = newCounter(
		"claimed_total", "Delivery rows claimed by a dispatcher instance.",
		"instance_id",
	)
	recorder.counters[core.MetricDeliveriesTotal] = newCounter(
		"deliveries_total", "Completed delivery attempts by outcome.",
		"outcome", "webhook_id",
	)
	recorder.histograms[core.MetricDeliveryDuration] = histogramBinding{
		vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_ms",
			Help:      "Outbound delivery latency in milliseconds.",
			Buckets:   cfg.buckets,
		}, []string{"outcome", "webhook_id"}),
		labels: []string{"outcome", "webhook_id"},
	}

	for _, binding := range recorder.counters {
		if err := cfg.registry.Register(binding.vec); err != nil {
			return nil, err
		}
	}
	for _, binding := range recorder.histograms {
		if err := cfg.registry.Register(binding.vec); err != nil {
			return nil, err
		}
	}
	if cfg.runtimeMetrics {
		if err := cfg.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := cfg.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	return recorder, nil
}

func newCounter(name string, help string, labels ...string) counterBinding {
	return counterBinding{
		vec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels),
		labels: labels,
	}
}

func (r *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	binding, ok := r.counters[strings.TrimSpace(name)]
	if !ok {
		return
	}
	binding.vec.WithLabelValues(labelValues(binding.labels, tags)...).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	binding, ok := r.histograms[strings.TrimSpace(name)]
	if !ok {
		return
	}
	binding.vec.WithLabelValues(labelValues(binding.labels, tags)...).Observe(value)
}

func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = tags[label]
	}
	return values
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
