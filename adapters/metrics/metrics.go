// Package metrics provides Prometheus metrics collection for PromptGate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for PromptGate.
type Collector struct {
	// Request metrics
	RequestsTotal *prometheus.CounterVec

	// Auth metrics
	AuthFailures    *prometheus.CounterVec
	QuotaRejections prometheus.Counter

	// Provisioning metrics
	WebhookEvents        *prometheus.CounterVec
	PoolKeys             *prometheus.GaugeVec
	PoolExhaustions      *prometheus.CounterVec
	NotificationFailures prometheus.Counter

	// Upstream metrics
	UpstreamErrors prometheus.Counter
}

// New creates a new metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return newWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collector on a private registry (for testing).
func NewWith(reg prometheus.Registerer) *Collector {
	return newWith(reg)
}

func newWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"path", "status"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		QuotaRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "quota_rejections_total",
				Help:      "Total number of requests rejected for exceeding quota",
			},
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "webhook_events_total",
				Help:      "Payment webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		PoolKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "promptgate",
				Name:      "pool_keys",
				Help:      "Unissued keys remaining per tier pool",
			},
			[]string{"tier"},
		),
		PoolExhaustions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "pool_exhaustions_total",
				Help:      "Allocation attempts that found an empty pool",
			},
			[]string{"tier"},
		),
		NotificationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "notification_failures_total",
				Help:      "Key delivery notifications that failed and need manual resend",
			},
		),
		UpstreamErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "promptgate",
				Name:      "upstream_errors_total",
				Help:      "Failed calls to the generation upstream",
			},
		),
	}
}
