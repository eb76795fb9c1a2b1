package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TransportMetrics covers the queue and outbound HTTP calls. It satisfies
// queue.Observer, queue.DepthObserver and httpclient.Observer.
type TransportMetrics struct {
	queueOps         *prometheus.CounterVec
	queueOpDuration  *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	httpCalls        *prometheus.CounterVec
	httpCallDuration *prometheus.HistogramVec
}

// NewTransportMetrics creates the transport metrics and registers them with registry.
func NewTransportMetrics(registry prometheus.Registerer) (*TransportMetrics, error) {
	m := &TransportMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register transport metrics: %w", err)
	}
	return m, nil
}

func (m *TransportMetrics) initMetrics() {
	m.queueOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_queue_operations_total",
			Help: "Total number of queue operations",
		},
		[]string{"queue", "operation", "status"}, // operation: send, receive, ack, release, purge
	)

	m.queueOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncbridge_queue_operation_duration_seconds",
			Help:    "Duration of queue operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"queue", "operation"},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncbridge_queue_messages",
			Help: "Sampled number of queue messages by state",
		},
		[]string{"queue", "state"}, // state: visible, delayed, in_flight, dead
	)

	m.httpCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_http_client_requests_total",
			Help: "Outbound HTTP calls to source, target and mapping services",
		},
		[]string{"client", "method", "status_code"}, // status_code is 0 when no response arrived
	)

	m.httpCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncbridge_http_client_request_duration_seconds",
			Help:    "Duration of outbound HTTP calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client", "method"},
	)
}

// ObserveQueueOperation records one queue operation.
func (m *TransportMetrics) ObserveQueueOperation(queue, operation string, duration time.Duration, err error) {
	m.queueOps.WithLabelValues(queue, operation, statusOf(err)).Inc()
	m.queueOpDuration.WithLabelValues(queue, operation).Observe(duration.Seconds())
}

// ObserveQueueDepth records one depth sample of a queue.
func (m *TransportMetrics) ObserveQueueDepth(queue string, visible, delayed, inFlight, dead int) {
	m.queueDepth.WithLabelValues(queue, "visible").Set(float64(visible))
	m.queueDepth.WithLabelValues(queue, "delayed").Set(float64(delayed))
	m.queueDepth.WithLabelValues(queue, "in_flight").Set(float64(inFlight))
	m.queueDepth.WithLabelValues(queue, "dead").Set(float64(dead))
}

// ObserveCall records one outbound HTTP call.
func (m *TransportMetrics) ObserveCall(client, method string, status int, duration time.Duration, _ error) {
	m.httpCalls.WithLabelValues(client, method, strconv.Itoa(status)).Inc()
	m.httpCallDuration.WithLabelValues(client, method).Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *TransportMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.queueOps.Describe(ch)
	m.queueOpDuration.Describe(ch)
	m.queueDepth.Describe(ch)
	m.httpCalls.Describe(ch)
	m.httpCallDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *TransportMetrics) Collect(ch chan<- prometheus.Metric) {
	m.queueOps.Collect(ch)
	m.queueOpDuration.Collect(ch)
	m.queueDepth.Collect(ch)
	m.httpCalls.Collect(ch)
	m.httpCallDuration.Collect(ch)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
