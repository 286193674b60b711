package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storedetect",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storedetect",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Detection metrics
	DetectionCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "cycles_total",
		Help:      "Detection cycles by outcome and method",
	}, []string{"outcome", "method"})

	DetectionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "confidence",
		Help:      "Confidence of detections that selected a store",
		Buckets:   []float64{30, 50, 70, 85, 95, 98, 100},
	})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a detection cycle",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
	})

	DirectoryFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "directory_fallbacks_total",
		Help:      "Store directory failures by fallback result (cached, stale, none)",
	}, []string{"result"})

	LocationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "location",
		Name:      "retries_total",
		Help:      "Position fetch retries by result",
	}, []string{"result"})

	GeofenceRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "geofence_rejections_total",
		Help:      "Malformed store geofences ignored during scoring",
	})

	ActiveWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "location",
		Name:      "active_watches",
		Help:      "Current number of active position watches",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "detection",
		Name:      "active_sessions",
		Help:      "Current number of device detection sessions",
	})

	PreferenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "preferences",
		Name:      "writes_total",
		Help:      "Preference mutations by operation",
	}, []string{"op"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storedetect",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storedetect",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
// It takes an interface so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
