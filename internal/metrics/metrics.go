// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	GatewayCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_ms",
			Help:    "Duration of payment gateway calls in ms",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"provider", "operation", "outcome"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Applied order status transitions",
		},
		[]string{"from", "to"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment provider notifications by result",
		},
		[]string{"provider", "result"},
	)

	WebhookUnknownOrder = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_unknown_order_total",
			Help: "Notifications whose payment references no local order",
		},
		[]string{"provider"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_outbox_published_total",
			Help: "Outbox events published to the broker",
		},
		[]string{"topic", "result"},
	)

	FulfillmentShort = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_short_total",
			Help: "Paid orders whose stock could not be fully decremented",
		},
	)
)

// Outcome labels for GatewayCalls.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveGateway records a gateway call started at t.
func (t *Timer) ObserveGateway(provider, operation, outcome string) {
	GatewayCalls.WithLabelValues(provider, operation, outcome).
		Observe(float64(t.Duration().Milliseconds()))
}
