package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the gateway
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts outbound delivery outcomes by trigger and outcome
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Outbound webhook deliveries by trigger type and outcome."},
		[]string{"trigger_type", "outcome"},
	)
	// WebhookLatency tracks outbound delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Outbound webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"trigger_type", "outcome"},
	)

	// InboundEvents counts partner webhook receipts by event type and final status
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "inbound_events_total", Help: "Inbound partner events by event type and status."},
		[]string{"event_type", "status"},
	)
	// InboundUnhandled counts validated events with no registered processor
	InboundUnhandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "inbound_unhandled_events_total", Help: "Validated inbound events with no registered processor."},
		[]string{"event_type"},
	)
	// InboundRateLimited counts partner requests dropped by the rate limiter
	InboundRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "inbound_rate_limited_total", Help: "Partner webhook requests rejected by the rate limiter."},
	)
)

// RegisterDefault registers collectors to the gateway registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(InboundEvents)
		Registry.MustRegister(InboundUnhandled)
		Registry.MustRegister(InboundRateLimited)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
