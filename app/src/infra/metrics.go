package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "code"})
	HttpRequestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "Total number of HTTP request errors",
	})
	ProcessingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "electric_ping_processing_duration_seconds",
		Help:    "Duration of request processing in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Database metrics
	DbInsertDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "electric_ping_db_insert_duration_seconds",
		Help:    "Duration of single-row inserts in seconds",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"table"})
	DbInsertFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "electric_ping_db_insert_failures_total",
		Help: "Total number of failed inserts",
	}, []string{"table"})

	// Shape proxy metrics
	ShapeProxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "electric_ping_shape_proxy_requests_total",
		Help: "Shape requests forwarded upstream, by upstream status",
	}, []string{"code"})

	// Change observer metrics
	ObserverPendingWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "electric_ping_observer_pending_waiters",
		Help: "Number of pings waiting for their change to arrive",
	})
	ObserverDeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "electric_ping_observer_deliveries_total",
		Help: "Total number of pings matched on the change feed",
	})
	ObserverTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "electric_ping_observer_timeouts_total",
		Help: "Total number of pings not observed before their deadline",
	})
	StreamBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "electric_ping_stream_batches_total",
		Help: "Total number of message batches received from the shape stream",
	})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HttpRequestsTotal,
			HttpRequestErrorsTotal,
			ProcessingDurationSeconds,
			DbInsertDurationSeconds,
			DbInsertFailuresTotal,
			ShapeProxyRequestsTotal,
			ObserverPendingWaiters,
			ObserverDeliveriesTotal,
			ObserverTimeoutsTotal,
			StreamBatchesTotal,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// StartMetricsServer exposes Prometheus metrics on :port/metrics. An empty
// port disables the server and returns nil.
func StartMetricsServer(port string, logger *Logger) *http.Server {
	InitMetrics()
	if port == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(context.Background(), "metrics server error: %v", err)
		}
	}()
	return server
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics.
func HTTPMiddleware(pathResolver func(*http.Request) string) func(http.Handler) http.Handler {
	InitMetrics()
	if pathResolver == nil {
		pathResolver = func(r *http.Request) string {
			return r.URL.Path
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				route := pathResolver(r)
				ProcessingDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
				HttpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.Status())).Inc()

				if recorder.Status() >= http.StatusBadRequest {
					HttpRequestErrorsTotal.Inc()
				}
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// RecordDBInsert tracks one insert into table.
func RecordDBInsert(table string, duration time.Duration, err error) {
	if duration < 0 {
		duration = 0
	}
	DbInsertDurationSeconds.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		DbInsertFailuresTotal.WithLabelValues(table).Inc()
	}
}

// RecordShapeProxy counts a forwarded shape request by upstream status; 0 means unreachable.
func RecordShapeProxy(status int) {
	ShapeProxyRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// SetPendingWaiters reports the size of the observer registry.
func SetPendingWaiters(n int) {
	ObserverPendingWaiters.Set(float64(n))
}

func IncObserverDeliveries() {
	ObserverDeliveriesTotal.Inc()
}

func IncObserverTimeouts() {
	ObserverTimeoutsTotal.Inc()
}

func IncStreamBatches() {
	StreamBatchesTotal.Inc()
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}

// Flush lets streamed shape responses pass through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
