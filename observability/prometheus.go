package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets cover sub-millisecond to ten second responses.
var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// PromCollector exports framework events through a dedicated Prometheus
// registry so multiple instances can coexist in one process.
type PromCollector struct {
	registry *prometheus.Registry
	handler  http.Handler

	resolutions       *prometheus.CounterVec
	reloads           prometheus.Counter
	skippedEntries    prometheus.Counter
	compiledPatterns  prometheus.Gauge
	exactRoutes       prometheus.Gauge
	chainsBuilt       prometheus.Counter
	chainWrappers     *prometheus.CounterVec
	extensionFailures *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// NewPromCollector creates a Prometheus-backed collector. The namespace
// prefixes every metric name; an empty namespace defaults to "beginnings".
func NewPromCollector(namespace string) *PromCollector {
	if namespace == "" {
		namespace = "beginnings"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &PromCollector{
		registry: registry,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Route configuration resolutions by cache outcome.",
		}, []string{"cache"}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "reloads_total",
			Help:      "Configuration reloads applied to the resolver.",
		}),
		skippedEntries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "skipped_entries_total",
			Help:      "Malformed route configuration entries skipped.",
		}),
		compiledPatterns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "compiled_patterns",
			Help:      "Wildcard patterns in the active route table.",
		}),
		exactRoutes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "exact_routes",
			Help:      "Exact routes in the active route table.",
		}),
		chainsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "builds_total",
			Help:      "Middleware chains composed for registered routes.",
		}),
		chainWrappers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "wrappers_total",
			Help:      "Wrappers contributed to chains by class.",
		}, []string{"class"}),
		extensionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extension",
			Name:      "failures_total",
			Help:      "Extension predicate and factory failures.",
		}, []string{"extension", "stage"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests handled, labelled by registered route.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency, labelled by registered route.",
			Buckets:   durationBuckets,
		}, []string{"method", "path"}),
	}

	c.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return c
}

func (c *PromCollector) RecordResolution(cacheHit bool) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	c.resolutions.WithLabelValues(outcome).Inc()
}

func (c *PromCollector) RecordReload(patterns, exact int) {
	c.reloads.Inc()
	c.compiledPatterns.Set(float64(patterns))
	c.exactRoutes.Set(float64(exact))
}

func (c *PromCollector) RecordSkippedEntry() {
	c.skippedEntries.Inc()
}

func (c *PromCollector) RecordChainBuild(total, security int) {
	c.chainsBuilt.Inc()
	if security > 0 {
		c.chainWrappers.WithLabelValues("security").Add(float64(security))
	}
	if general := total - security; general > 0 {
		c.chainWrappers.WithLabelValues("general").Add(float64(general))
	}
}

func (c *PromCollector) RecordExtensionFailure(extension, stage string) {
	c.extensionFailures.WithLabelValues(extension, stage).Inc()
}

func (c *PromCollector) RecordRequest(method, path string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *PromCollector) Handler() http.Handler {
	return c.handler
}

// Registry exposes the underlying registry for additional registrations.
func (c *PromCollector) Registry() *prometheus.Registry {
	return c.registry
}
