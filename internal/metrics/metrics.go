// Package metrics exposes Prometheus collectors for presentation feedback
// outcomes observed by a client.
package metrics

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/presfeed/internal/presentation"
	"github.com/roach88/presfeed/internal/protocol"
)

// Config configures a Recorder.
type Config struct {
	// Namespace is the metrics namespace (default: "presfeed").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for refresh intervals, in seconds.
	Buckets []float64

	// Registry receives the collectors and is gathered by WriteText.
	// Default: a fresh private registry.
	Registry *prometheus.Registry
}

// Option configures a Recorder.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the refresh interval histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// refreshBuckets cover 240 Hz down to 24 Hz.
var refreshBuckets = []float64{0.004167, 0.006944, 0.008333, 0.011111, 0.016667, 0.020, 0.033334, 0.041667}

func defaultConfig() Config {
	return Config{
		Namespace: "presfeed",
		Buckets:   refreshBuckets,
	}
}

// Recorder collects feedback outcome metrics.
type Recorder struct {
	registry *prometheus.Registry

	feedbackTotal   *prometheus.CounterVec
	flagsTotal      *prometheus.CounterVec
	syncOutputs     prometheus.Counter
	refreshSeconds  prometheus.Histogram
	dispatchesTotal *prometheus.CounterVec
	eventsTotal     prometheus.Counter
	violationsTotal *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors.
//
// Metrics collected:
//   - presfeed_feedback_total: terminal feedback by result
//   - presfeed_presented_flags_total: presented feedback by flag name
//   - presfeed_sync_output_events_total: sync_output events received
//   - presfeed_refresh_seconds: reported refresh intervals
//   - presfeed_dispatches_total: pump calls by outcome
//   - presfeed_events_dispatched_total: events delivered by the pump
//   - presfeed_violations_total: protocol violations by code
func New(opts ...Option) *Recorder {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)
	return &Recorder{
		registry: config.Registry,

		feedbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "feedback_total",
			Help:        "Feedback requests by terminal result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		flagsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "presented_flags_total",
			Help:        "Presented feedback by delivery flag",
			ConstLabels: config.ConstLabels,
		}, []string{"flag"}),

		syncOutputs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sync_output_events_total",
			Help:        "sync_output events received by observed feedback",
			ConstLabels: config.ConstLabels,
		}),

		refreshSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "refresh_seconds",
			Help:        "Refresh interval reported with presented events",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		dispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Pump dispatch calls by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		eventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_dispatched_total",
			Help:        "Events delivered by the pump",
			ConstLabels: config.ConstLabels,
		}),

		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "violations_total",
			Help:        "Protocol violations by code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
	}
}

// Registry returns the registry holding the Recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveFeedback records the outcome of a terminal feedback request.
// Pending feedback is ignored.
func (r *Recorder) ObserveFeedback(fb *presentation.Feedback) {
	if fb.Pending() {
		return
	}
	r.feedbackTotal.WithLabelValues(fb.Result().String()).Inc()
	r.syncOutputs.Add(float64(fb.SyncOutputEvents()))
	if fb.Result() != presentation.Presented {
		return
	}
	for _, name := range fb.Flags().Names() {
		r.flagsTotal.WithLabelValues(name).Inc()
	}
	if refresh := fb.RefreshNsec(); refresh > 0 {
		r.refreshSeconds.Observe(float64(refresh) / presentation.NanosPerSecond)
	}
}

// ObserveError records err if it carries a violation code.
func (r *Recorder) ObserveError(err error) {
	if code := presentation.ViolationCodeOf(err); code != "" {
		r.violationsTotal.WithLabelValues(string(code)).Inc()
	}
}

// Pump wraps p so that every Dispatch is counted.
func (r *Recorder) Pump(p protocol.Pump) protocol.Pump {
	return &countingPump{next: p, rec: r}
}

type countingPump struct {
	next protocol.Pump
	rec  *Recorder
}

func (p *countingPump) Dispatch(ctx context.Context) (int, error) {
	n, err := p.next.Dispatch(ctx)
	if err != nil {
		p.rec.dispatchesTotal.WithLabelValues("error").Inc()
		return n, err
	}
	p.rec.dispatchesTotal.WithLabelValues("ok").Inc()
	p.rec.eventsTotal.Add(float64(n))
	return n, nil
}

// WriteText writes every metric family in the Recorder's registry in the
// Prometheus text exposition format, sorted by name.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
