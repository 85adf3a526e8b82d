// Package metrics exposes smoke test outcomes as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newssmoke"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal     *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
	lastRunFailures prometheus.Gauge
	serverUp        *prometheus.GaugeVec
	beaconsTotal    *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Site checks run, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of one site check in seconds",
				Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a full smoke test run in seconds",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200},
			},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		lastRunFailures: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_failures",
				Help:      "Failed checks in the last run",
			},
		),
		serverUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_up",
				Help:      "1 when the last probe of the backend server succeeded",
			},
			[]string{"server"},
		),
		beaconsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_beacons_total",
				Help:      "Analytics beacons correlated to a pagination page",
			},
			[]string{"page"},
		),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCheck records one check result.
func (m *Metrics) ObserveCheck(kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.checksTotal.WithLabelValues(kind, outcome).Inc()
	m.checkDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(d time.Duration, finished time.Time, failures int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
	m.lastRunFailures.Set(float64(failures))
}

// SetServerUp records the latest probe outcome for server.
func (m *Metrics) SetServerUp(server string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.serverUp.WithLabelValues(server).Set(v)
}

// AddBeacons counts n correlated beacons for page.
func (m *Metrics) AddBeacons(page, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.beaconsTotal.WithLabelValues(strconv.Itoa(page)).Add(float64(n))
}
