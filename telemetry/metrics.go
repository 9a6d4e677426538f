// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	StreamsStarted  prometheus.Counter
	StreamsEnded    prometheus.Counter
	ViewsTotal      prometheus.Counter
	WebhookEvents   *prometheus.CounterVec
	LoginsSucceeded prometheus.Counter
	LoginsFailed    prometheus.Counter
	UsersRegistered prometheus.Counter

	// Histograms (seconds)
	RequestDuration prometheus.Observer

	// Gauges
	LiveStreamsGauge prometheus.Gauge
	ViewersGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		StreamsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "stream_sessions_started_total", Help: "Number of broadcast sessions started"})
		StreamsEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "stream_sessions_ended_total", Help: "Number of broadcast sessions ended"})
		ViewsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "stream_views_total", Help: "Number of viewer play events"})
		WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rtmp_webhook_events_total", Help: "RTMP webhook callbacks by event"}, []string{"event"})
		LoginsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "auth_logins_succeeded_total", Help: "Number of successful logins"})
		LoginsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "auth_logins_failed_total", Help: "Number of failed logins"})
		UsersRegistered = promauto.NewCounter(prometheus.CounterOpts{Name: "auth_users_registered_total", Help: "Number of user registrations"})
		RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets})
		LiveStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streams_live", Help: "Current number of live streams"})
		ViewersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "stream_viewers_current", Help: "Current viewers across all live streams"})
	})
}

// CountWebhookEvent records an RTMP callback by event name, if metrics are initialized.
func CountWebhookEvent(event string) {
	if WebhookEvents != nil {
		WebhookEvents.WithLabelValues(event).Inc()
	}
}

// SetLiveStreams records the current live stream count.
func SetLiveStreams(n int) {
	if LiveStreamsGauge != nil {
		LiveStreamsGauge.Set(float64(n))
	}
}

// AddViewers moves the global viewer gauge by delta.
func AddViewers(delta int) {
	if ViewersGauge != nil {
		ViewersGauge.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
