// Package metrics exports run signals as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"cgr/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts groups, case outcomes and warnings. It implements
// report.Sink, report.WarningSink and engine.Observer.
type Collector struct {
	registry *prometheus.Registry

	groupsTotal       *prometheus.CounterVec
	groupSize         prometheus.Histogram
	callPhaseDuration prometheus.Histogram
	casesTotal        *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	warningsTotal     *prometheus.CounterVec
	casesRunning      prometheus.Gauge
}

// NewCollector creates a Collector registered on its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		groupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cgr_groups_total",
				Help: "Total number of concurrent groups, by result.",
			},
			[]string{"result"},
		),
		groupSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cgr_group_members",
				Help:    "Number of members per executed group.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		callPhaseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cgr_group_call_phase_seconds",
				Help:    "Wall-clock duration of the concurrent call phase of a group, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		casesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cgr_case_reports_total",
				Help: "Total number of counted case reports, by status.",
			},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cgr_phase_duration_seconds",
				Help:    "Duration of one case phase, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cgr_warnings_total",
				Help: "Total number of warnings, by kind.",
			},
			[]string{"kind"},
		),
		casesRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cgr_cases_running",
				Help: "Number of cases between their start and finish signals.",
			},
		),
	}

	c.registry.MustRegister(
		c.groupsTotal,
		c.groupSize,
		c.callPhaseDuration,
		c.casesTotal,
		c.phaseDuration,
		c.warningsTotal,
		c.casesRunning,
	)

	// Pre-initialize label combinations so they appear with value 0.
	for _, st := range domain.Statuses {
		c.casesTotal.WithLabelValues(string(st))
	}
	c.groupsTotal.WithLabelValues("run")
	c.groupsTotal.WithLabelValues("invalidated")
	c.warningsTotal.WithLabelValues(domain.WarningGrouping)
	c.warningsTotal.WithLabelValues(domain.WarningInvalidMark)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) GroupRun(key string, members int) {
	c.groupsTotal.WithLabelValues("run").Inc()
	c.groupSize.Observe(float64(members))
}

func (c *Collector) GroupInvalidated(key string, members int) {
	c.groupsTotal.WithLabelValues("invalidated").Inc()
}

func (c *Collector) CallPhase(key string, d time.Duration) {
	c.callPhaseDuration.Observe(d.Seconds())
}

func (c *Collector) LogStart(caseID string) {
	c.casesRunning.Inc()
}

func (c *Collector) LogReport(r domain.Report) {
	c.phaseDuration.WithLabelValues(string(r.Phase)).Observe(r.Duration.Seconds())
	if st := r.Status(); st != "" {
		c.casesTotal.WithLabelValues(string(st)).Inc()
	}
}

func (c *Collector) LogFinish(caseID string) {
	c.casesRunning.Dec()
}

func (c *Collector) Warn(w domain.Warning) {
	c.warningsTotal.WithLabelValues(w.Kind).Inc()
}
