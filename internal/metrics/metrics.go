package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
}

var (
	lifecycleOnce     sync.Once
	lifecycleRegistry *LifecycleMetrics
)

// Lifecycle returns the process-wide collectors, registering them with the
// default registry on first use.
func Lifecycle() *LifecycleMetrics {
	lifecycleOnce.Do(func() {
		lifecycleRegistry = &LifecycleMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_lifecycle_transitions_total",
				Help: "Successful lifecycle transitions by entity and status pair.",
			}, []string{"entity", "from", "to"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_lifecycle_rejections_total",
				Help: "Lifecycle operations refused by entity, operation and reason.",
			}, []string{"entity", "operation", "reason"}),
			sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_worker_sweep_items_total",
				Help: "Records handled by background sweeps by job and outcome.",
			}, []string{"job", "outcome"}),
			webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_notify_webhook_deliveries_total",
				Help: "Webhook delivery attempts by outcome.",
			}, []string{"outcome"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_http_requests_total",
				Help: "HTTP requests by route, method and status.",
			}, []string{"route", "method", "status"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rental_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(
			lifecycleRegistry.transitions,
			lifecycleRegistry.rejections,
			lifecycleRegistry.sweeps,
			lifecycleRegistry.webhooks,
			lifecycleRegistry.requests,
			lifecycleRegistry.durations,
		)
	})
	return lifecycleRegistry
}

func (m *LifecycleMetrics) ObserveTransition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

func (m *LifecycleMetrics) ObserveRejection(entity, operation, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(entity, operation, reason).Inc()
}

func (m *LifecycleMetrics) ObserveSweep(job, outcome string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(job, outcome).Inc()
}

func (m *LifecycleMetrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *LifecycleMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
