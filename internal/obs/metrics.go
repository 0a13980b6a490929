package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "route", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tkfleet_ready",
		Help: "1 when the service passed its last readiness check.",
	})
)

// Доменные метрики трекинга
var (
	LocationUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tkfleet_location_updates_total",
			Help: "Vehicle position updates by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	LocationBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tkfleet_location_batch_size",
		Help:    "Vehicles requested per batch update.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	LocationSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tkfleet_location_batch_skipped_total",
		Help: "Batch entries skipped because the vehicle is unknown or deleted.",
	})

	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tkfleet_auth_events_total",
			Help: "Login, refresh and revocation outcomes.",
		},
		[]string{"event", "outcome"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре. Повторный вызов безопасен.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			LocationUpdates, LocationBatchSize, LocationSkipped, AuthEvents,
		)
	})
}

// SetReady records the outcome of the last readiness check.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Обёртка для измерения RPS/latency/в полёте. Метка route берётся из
// шаблона ServeMux (r.Pattern), чтобы id в пути не раздували кардинальность.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, route, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, route, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
