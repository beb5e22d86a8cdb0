package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of the exposure engine. A nil *Metrics is
// valid and records nothing, so components can take it as an optional
// dependency.
type Metrics struct {
	registry *prometheus.Registry

	backfillRuns     *prometheus.CounterVec
	backfilledDays   *prometheus.CounterVec
	newSources       prometheus.Gauge
	reclaimRuns      *prometheus.CounterVec
	reclaimedRows    prometheus.Counter
	watermark        prometheus.Gauge
	timelineBuilds   *prometheus.CounterVec
	timelineDuration prometheus.Histogram
	operatorLookups  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backfillRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_backfill_runs_total",
			Help: "Daily summary backfill runs by result.",
		}, []string{"result"}),
		backfilledDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_backfilled_days_total",
			Help: "Days written by the backfill, by summary table.",
		}, []string{"summary"}),
		newSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exposure_new_sources",
			Help: "New Wi-Fi and Bluetooth sources detected for the last completed day.",
		}),
		reclaimRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_retention_runs_total",
			Help: "Retention passes by result.",
		}, []string{"result"}),
		reclaimedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exposure_retention_deleted_rows_total",
			Help: "Rows deleted by retention passes.",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exposure_retention_watermark_seconds",
			Help: "Unix time of the oldest retained data.",
		}),
		timelineBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_timeline_builds_total",
			Help: "Timeline builds by mode and outcome.",
		}, []string{"mode", "result"}),
		timelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exposure_timeline_build_duration_seconds",
			Help:    "Histogram of timeline build durations.",
			Buckets: prometheus.DefBuckets,
		}),
		operatorLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exposure_operator_lookups_total",
			Help: "Operator name lookups by cache outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.backfillRuns,
		m.backfilledDays,
		m.newSources,
		m.reclaimRuns,
		m.reclaimedRows,
		m.watermark,
		m.timelineBuilds,
		m.timelineDuration,
		m.operatorLookups,
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) BackfillRun(err error) {
	if m == nil {
		return
	}
	m.backfillRuns.WithLabelValues(result(err)).Inc()
}

// BackfilledDay counts one day written to the named summary table.
func (m *Metrics) BackfilledDay(summary string) {
	if m == nil {
		return
	}
	m.backfilledDays.WithLabelValues(summary).Inc()
}

func (m *Metrics) NewSources(count int) {
	if m == nil {
		return
	}
	m.newSources.Set(float64(count))
}

func (m *Metrics) Reclaim(deleted int64, watermark time.Time, err error) {
	if m == nil {
		return
	}
	m.reclaimRuns.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.reclaimedRows.Add(float64(deleted))
	m.watermark.Set(float64(watermark.Unix()))
}

// TimelineBuild records one timeline build. mode is "full" or "live";
// skipped reports a live request dropped because another was in flight.
func (m *Metrics) TimelineBuild(mode string, elapsed time.Duration, skipped bool, err error) {
	if m == nil {
		return
	}
	switch {
	case skipped:
		m.timelineBuilds.WithLabelValues(mode, "skipped").Inc()
	default:
		m.timelineBuilds.WithLabelValues(mode, result(err)).Inc()
		m.timelineDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) OperatorLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.operatorLookups.WithLabelValues(outcome).Inc()
}
