package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wbclient",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"session", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wbclient",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session", "method", "path", "status"},
	)
	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wbclient",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session pump events by kind (commands_sent, events_published, decode_errors, ...).",
		},
		[]string{"session", "kind"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wbclient",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from transport ready to handshake result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session", "result"},
	)
	queuedCommands = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wbclient",
			Subsystem: "session",
			Name:      "queued_commands",
			Help:      "Commands submitted but not yet written.",
		},
		[]string{"session"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, sessionEvents, handshakeDuration, queuedCommands)
	})
}

func RecordHTTPRequest(session, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(session, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(session, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionEvent(session, kind string) {
	RegisterMetrics()
	sessionEvents.WithLabelValues(session, kind).Inc()
}

func RecordHandshake(session string, success bool, duration time.Duration) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "failed"
	}
	handshakeDuration.WithLabelValues(session, result).Observe(duration.Seconds())
}

func SetQueuedCommands(session string, n int) {
	RegisterMetrics()
	queuedCommands.WithLabelValues(session).Set(float64(n))
}
