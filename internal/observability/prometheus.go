package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "storefront"

// Metrics holds the Prometheus collectors exposed on /metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	ordersCreated       *prometheus.CounterVec
	webhookEvents       *prometheus.CounterVec
	fulfillmentResults  *prometheus.CounterVec
	fulfillmentDuration prometheus.Histogram
	fulfillmentQueued   prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted at checkout.",
		}, []string{"payment_method"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment webhook events by type and outcome.",
		}, []string{"event_type", "result"}),
		fulfillmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fulfillment_dispatch_total",
			Help:      "Carrier dispatch attempts by outcome.",
		}, []string{"result"}),
		fulfillmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fulfillment_dispatch_duration_seconds",
			Help:      "Carrier dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		fulfillmentQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "fulfillment_queue_depth",
			Help:      "Orders waiting for a fulfillment worker.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersCreated,
		m.webhookEvents,
		m.fulfillmentResults,
		m.fulfillmentDuration,
		m.fulfillmentQueued,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated(paymentMethod string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(paymentMethod).Inc()
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) FulfillmentDispatched(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fulfillmentResults.WithLabelValues(result).Inc()
	m.fulfillmentDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FulfillmentQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.fulfillmentQueued.Set(float64(depth))
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
