package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/repota/pkg/storage"
)

// MetricsService owns the process's Prometheus registry.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	storageWrites      *prometheus.CounterVec
	storageWriteTime   *prometheus.HistogramVec
	autosaveCoalesced  *prometheus.CounterVec
	storageBackend     *prometheus.GaugeVec
	reportJobsFinished *prometheus.CounterVec
}

// NewMetricsService registers the gradebook collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	storageWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "repota_storage_writes_total",
		Help: "Storage writes by key and outcome",
	}, []string{"key", "result"})

	storageWriteTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repota_storage_write_seconds",
		Help:    "Latency of storage writes",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"key"})

	autosaveCoalesced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "repota_autosave_coalesced_total",
		Help: "Snapshots superseded before their debounce timer fired",
	}, []string{"key"})

	storageBackend := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repota_storage_backend",
		Help: "1 for the storage backend selected by the startup probe",
	}, []string{"backend"})

	reportJobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "repota_report_jobs_total",
		Help: "Broadsheet report jobs by final status",
	}, []string{"status"})

	registry.MustRegister(
		requestDuration,
		requestTotal,
		storageWrites,
		storageWriteTime,
		autosaveCoalesced,
		storageBackend,
		reportJobsFinished,
		collectors.NewGoCollector(),
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		storageWrites:      storageWrites,
		storageWriteTime:   storageWriteTime,
		autosaveCoalesced:  autosaveCoalesced,
		storageBackend:     storageBackend,
		reportJobsFinished: reportJobsFinished,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveStorageWrite implements storage.WriteObserver.
func (m *MetricsService) ObserveStorageWrite(key, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storageWrites.WithLabelValues(key, result).Inc()
	m.storageWriteTime.WithLabelValues(key).Observe(duration.Seconds())
}

// RecordAutoSaveCoalesced counts a snapshot replaced inside the debounce window.
func (m *MetricsService) RecordAutoSaveCoalesced(key string) {
	if m == nil {
		return
	}
	m.autosaveCoalesced.WithLabelValues(key).Inc()
}

// SetStorageBackend marks backend as the active one.
func (m *MetricsService) SetStorageBackend(backend storage.Backend) {
	if m == nil {
		return
	}
	for _, b := range []storage.Backend{storage.BackendSQLite, storage.BackendFile} {
		value := 0.0
		if b == backend {
			value = 1
		}
		m.storageBackend.WithLabelValues(string(b)).Set(value)
	}
}

// RecordReportJob counts a report job reaching a final status.
func (m *MetricsService) RecordReportJob(status string) {
	if m == nil {
		return
	}
	m.reportJobsFinished.WithLabelValues(status).Inc()
}
