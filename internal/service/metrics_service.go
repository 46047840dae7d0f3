package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the reconciliation pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	batchOps        prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
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

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_dispatch_total",
		Help: "Change events dispatched to reconcilers, by outcome",
	}, []string{"collection", "kind", "result"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_events_published_total",
		Help: "Change events published by the store bus",
	}, []string{"collection", "kind"})

	batchOps := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_batch_ops",
		Help:    "Operations per committed batch chunk",
		Buckets: []float64{1, 10, 50, 100, 250, 500},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dispatchTotal, eventsPublished, batchOps, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		dispatchTotal:   dispatchTotal,
		eventsPublished: eventsPublished,
		batchOps:        batchOps,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDispatch counts one reconciler dispatch outcome.
func (m *MetricsService) ObserveDispatch(collection, kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.dispatchTotal.WithLabelValues(collection, kind, result).Inc()
}

// ObserveEvent counts one published change event.
func (m *MetricsService) ObserveEvent(collection, kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(collection, kind).Inc()
}

// ObserveBatch records the size of a committed batch chunk.
func (m *MetricsService) ObserveBatch(ops int) {
	if m == nil {
		return
	}
	m.batchOps.Observe(float64(ops))
}
