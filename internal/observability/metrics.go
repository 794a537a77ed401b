package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retail-analytics/internal/pipeline"
)

const namespace = "retail"

// Metrics holds the process's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	loads          *prometheus.CounterVec
	loadDuration   prometheus.Histogram
	rowsIn         prometheus.Counter
	rowsOut        prometheus.Counter
	rowsRemoved    *prometheus.CounterVec
	rowsMissing    prometheus.Counter
	cleanedRecords prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Load attempts by outcome (miss, hit, error).",
		}, []string{"outcome"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time to produce a cleaned table, cache hits included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		rowsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleaning_rows_in_total",
			Help:      "Rows entering the cleaning pipeline.",
		}),
		rowsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleaning_rows_out_total",
			Help:      "Rows surviving the cleaning pipeline.",
		}),
		rowsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleaning_rows_removed_total",
			Help:      "Rows removed by each cleaning step.",
		}, []string{"step"}),
		rowsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleaning_rows_missing_total",
			Help:      "Rows dropped for an absent quantity or unit price.",
		}),
		cleanedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cleaned_records",
			Help:      "Rows in the most recently loaded cleaned table.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loads, m.loadDuration,
		m.rowsIn, m.rowsOut, m.rowsRemoved, m.rowsMissing, m.cleanedRecords,
		m.httpRequests, m.httpDuration, m.httpInFlight,
	)
	return m
}

// ObserveLoad records one load attempt. Cleaning counters only move on a
// cache miss, when the pipeline actually ran.
func (m *Metrics) ObserveLoad(_ string, stats pipeline.Stats, d time.Duration, cacheHit bool, err error) {
	m.loadDuration.Observe(d.Seconds())

	switch {
	case err != nil:
		m.loads.WithLabelValues("error").Inc()
		return
	case cacheHit:
		m.loads.WithLabelValues("hit").Inc()
	default:
		m.loads.WithLabelValues("miss").Inc()
		m.rowsIn.Add(float64(stats.Input))
		m.rowsOut.Add(float64(stats.Output))
		m.rowsMissing.Add(float64(stats.Missing.Rows))
		for _, st := range stats.Steps {
			m.rowsRemoved.WithLabelValues(st.Name).Add(float64(st.Removed))
		}
	}
	m.cleanedRecords.Set(float64(stats.Output))
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) InFlight() prometheus.Gauge {
	return m.httpInFlight
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
