package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
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

	// DispatchCommits counts commit attempts by outcome: success, partial, failed, capacity, invalid
	DispatchCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_commits_total", Help: "Dispatch commit attempts by outcome."},
		[]string{"outcome"},
	)
	// DispatchOrders counts per-order commit results
	DispatchOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_orders_total", Help: "Orders processed by dispatch commits."},
		[]string{"result"},
	)
	// AssignmentTransitions counts lifecycle transitions by event and target state
	AssignmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "assignment_transitions_total", Help: "Assignment lifecycle transitions."},
		[]string{"event", "to"},
	)
	OptimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimization_duration_seconds", Help: "Clustering pipeline duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}},
	)
	// EfficiencyScore holds the overall score of the latest optimization
	EfficiencyScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimization_efficiency_score", Help: "Overall efficiency score of the last optimization run."},
	)
	SequencingFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "route_sequencing_fallbacks_total", Help: "Clusters that kept their input order because sequencing failed."},
	)
	// WebhookDeliveries counts webhook delivery attempts by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
	EventPublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "event_publish_errors_total", Help: "Assignment events that a sink failed to publish."},
		[]string{"sink"},
	)
)

// RegisterDefault registers collectors to Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(DispatchCommits)
		Registry.MustRegister(DispatchOrders)
		Registry.MustRegister(AssignmentTransitions)
		Registry.MustRegister(OptimizationDuration)
		Registry.MustRegister(EfficiencyScore)
		Registry.MustRegister(SequencingFallbacks)
		Registry.MustRegister(EventPublishErrors)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
