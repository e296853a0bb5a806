// Package metrics exposes Prometheus collectors for ingestion, the team
// statistics fold, the change relay and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pitchlog"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// Recorder holds every pitchlog collector on its own registry.
//
// It implements ingestion.Observer, aggregation.Observer and changes.RelayObserver.
type Recorder struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestAttempts prometheus.Histogram

	foldTotal    *prometheus.CounterVec
	foldDuration prometheus.Histogram
	goalsFolded  prometheus.Counter

	relayPublished prometheus.Counter
	relayErrors    prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Ingest calls by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Ingest call latency by outcome.",
			Buckets:   durationBuckets,
		}, []string{"outcome"}),
		ingestAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "attempts",
			Help:      "Conditional write attempts per ingest call.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		foldTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "notifications_total",
			Help:      "Handled change notifications by outcome.",
		}, []string{"outcome"}),
		foldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "duration_seconds",
			Help:      "Change notification handling latency.",
			Buckets:   durationBuckets,
		}),
		goalsFolded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "goals_folded_total",
			Help:      "Goals added to team totals.",
		}),
		relayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Change notifications published from the outbox.",
		}),
		relayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Failed relay flushes.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   durationBuckets,
		}, []string{"route", "method"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ingestTotal, r.ingestDuration, r.ingestAttempts,
		r.foldTotal, r.foldDuration, r.goalsFolded,
		r.relayPublished, r.relayErrors,
		r.requestsTotal, r.requestDuration,
	)

	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveIngest records one ingest call.
func (r *Recorder) ObserveIngest(outcome string, attempts int, elapsed time.Duration) {
	r.ingestTotal.WithLabelValues(outcome).Inc()
	r.ingestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if attempts > 0 {
		r.ingestAttempts.Observe(float64(attempts))
	}
}

// ObserveFold records one handled change notification.
func (r *Recorder) ObserveFold(outcome string, goals int, elapsed time.Duration) {
	r.foldTotal.WithLabelValues(outcome).Inc()
	r.foldDuration.Observe(elapsed.Seconds())
	r.goalsFolded.Add(float64(goals))
}

// ObserveRelay records one relay flush.
func (r *Recorder) ObserveRelay(published int, err error) {
	r.relayPublished.Add(float64(published))

	if err != nil {
		r.relayErrors.Inc()
	}
}

// ObserveRequest records one HTTP request. route is the registered pattern,
// never the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
