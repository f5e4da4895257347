package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for connector import runs.
type Collector struct {
	registry        *prometheus.Registry
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	pulsesFetched   prometheus.Counter
	stixObjects     *prometheus.CounterVec
	bundlesSent     prometheus.Counter
	importErrors    *prometheus.CounterVec
	lastRunUnixtime prometheus.Gauge
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "runs_total",
		Help:      "Total number of import runs by outcome.",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "run_duration_seconds",
		Help:      "Duration distribution of import runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	pulsesFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "pulses_fetched_total",
		Help:      "Total number of pulses fetched from the feed.",
	})

	stixObjects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "stix_objects_total",
		Help:      "Total number of STIX objects emitted by object type.",
	}, []string{"type"})

	bundlesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "bundles_sent_total",
		Help:      "Total number of STIX bundles pushed to the platform.",
	})

	importErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "import_errors_total",
		Help:      "Total number of import errors by stage.",
	}, []string{"stage"})

	lastRunUnixtime := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "connector",
		Subsystem: "alienvault",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last completed import run.",
	})

	collectors := []prometheus.Collector{
		runsTotal, runDuration, pulsesFetched, stixObjects,
		bundlesSent, importErrors, lastRunUnixtime,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		pulsesFetched:   pulsesFetched,
		stixObjects:     stixObjects,
		bundlesSent:     bundlesSent,
		importErrors:    importErrors,
		lastRunUnixtime: lastRunUnixtime,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome and duration of a completed run.
func (c *Collector) ObserveRun(status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
	c.lastRunUnixtime.SetToCurrentTime()
}

// AddPulses records fetched pulses.
func (c *Collector) AddPulses(n int) {
	c.pulsesFetched.Add(float64(n))
}

// AddObjects records emitted STIX objects for a given object type.
func (c *Collector) AddObjects(objectType string, n int) {
	c.stixObjects.WithLabelValues(objectType).Add(float64(n))
}

// IncBundles records a pushed bundle.
func (c *Collector) IncBundles() {
	c.bundlesSent.Inc()
}

// IncError records an import error at the given stage.
func (c *Collector) IncError(stage string) {
	c.importErrors.WithLabelValues(stage).Inc()
}
