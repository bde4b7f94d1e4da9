// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ytpanel"

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Lifecycle metrics
	Analyses        *prometheus.CounterVec
	DownloadsStarts *prometheus.CounterVec
	Polls           *prometheus.CounterVec
	Sessions        *prometheus.CounterVec
	ActiveCadences  prometheus.Gauge
	SessionDuration prometheus.Histogram
	Lists           *prometheus.CounterVec
	FetchedBytes    prometheus.Counter

	// Backend client metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Status server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge
}

// New creates all application metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		// Lifecycle metrics
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "analyses_total",
			Help:      "Total number of analyze calls by result",
		}, []string{"result"}),
		DownloadsStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "download_starts_total",
			Help:      "Total number of start-download calls by type and result",
		}, []string{"type", "result"}),
		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Total number of progress polls by observed status",
		}, []string{"status"}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "sessions_total",
			Help:      "Total number of poll sessions by final state",
		}, []string{"state"}),
		ActiveCadences: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "active_cadences",
			Help:      "Number of currently running poll cadences (0 or 1)",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "session_duration_seconds",
			Help:      "Histogram of poll session lifetimes in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		Lists: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "list_refreshes_total",
			Help:      "Total number of completed-downloads refreshes by result",
		}, []string{"result"}),
		FetchedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "fetched_bytes_total",
			Help:      "Total bytes of completed files fetched from the backend",
		}),

		// Backend client metrics
		BackendRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend requests by operation and status code",
		}, []string{"operation", "status"}),
		BackendRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Histogram of backend request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Status server metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served by the status server",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000},
		}, []string{"method", "path"}),

		// Proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of backend requests routed through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "available",
			Help:      "Number of currently available proxies",
		}),
	}

	return metrics
}

// Handler returns the Prometheus HTTP handler serving g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordAnalysis records an analyze call outcome: success, error or invalid.
func (m *Metrics) RecordAnalysis(result string) {
	if m == nil {
		return
	}

	m.Analyses.WithLabelValues(result).Inc()
}

// RecordDownloadStart records a start-download call outcome.
func (m *Metrics) RecordDownloadStart(downloadType, result string) {
	if m == nil {
		return
	}

	m.DownloadsStarts.WithLabelValues(downloadType, result).Inc()
}

// RecordPoll records one progress poll by observed status.
func (m *Metrics) RecordPoll(status string) {
	if m == nil {
		return
	}

	m.Polls.WithLabelValues(status).Inc()
}

// SessionTimer marks a cadence as active and returns a function ending it with its final state.
func (m *Metrics) SessionTimer() func(state string) {
	if m == nil {
		return func(string) {}
	}

	start := time.Now()

	m.ActiveCadences.Inc()

	return func(state string) {
		m.ActiveCadences.Dec()
		m.Sessions.WithLabelValues(state).Inc()
		m.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordList records a completed-downloads refresh outcome.
func (m *Metrics) RecordList(result string) {
	if m == nil {
		return
	}

	m.Lists.WithLabelValues(result).Inc()
}

// RecordFetchedBytes adds n fetched bytes.
func (m *Metrics) RecordFetchedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.FetchedBytes.Add(float64(n))
}

// RecordBackendRequest records a backend call. status is 0 on transport failure.
func (m *Metrics) RecordBackendRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	statusStr := "transport_error"
	if status > 0 {
		statusStr = strconv.Itoa(status)
	}

	m.BackendRequestsTotal.WithLabelValues(operation, statusStr).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	if m == nil {
		return
	}

	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	if m == nil {
		return
	}

	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	if m == nil {
		return
	}

	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	if m == nil {
		return
	}

	m.ProxiesAvailable.Set(float64(count))
}
