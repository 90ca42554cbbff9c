package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maumercado/miri-go/pkg/client"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miri_client_requests_total",
			Help: "Total number of calls made to the agent service",
		},
		[]string{"operation", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "miri_client_request_duration_seconds",
			Help:    "Call duration in seconds, including credential injection",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"operation"},
	)

	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miri_client_request_errors_total",
			Help: "Total number of failed calls by error class",
		},
		[]string{"operation", "class"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "miri_client_websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miri_client_websocket_messages_total",
			Help: "Total number of WebSocket frames by direction",
		},
		[]string{"direction"},
	)
)

// RecordRequest records one finished call. A zero status means no response
// was received.
func RecordRequest(operation, method string, status int, duration float64) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(operation, method, code).Inc()
	RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRequestError records a failed call.
func RecordRequestError(operation, class string) {
	RequestErrors.WithLabelValues(operation, class).Inc()
}

// RecordWebSocketMessage records a frame sent, received or dropped.
func RecordWebSocketMessage(direction string) {
	WebSocketMessages.WithLabelValues(direction).Inc()
}

// Observer feeds SDK events into the collectors above.
type Observer struct{}

// NewObserver returns an observer for client.WithObserver.
func NewObserver() *Observer {
	return &Observer{}
}

func (o *Observer) ObserveRequest(e client.RequestEvent) {
	RecordRequest(e.Operation, e.Method, e.StatusCode, e.Duration.Seconds())
	if e.Err != nil {
		RecordRequestError(e.Operation, e.ErrorClass())
	}
}

func (o *Observer) ObserveWebSocket(e client.WSEvent) {
	switch e {
	case client.WSConnected:
		WebSocketConnections.Inc()
	case client.WSDisconnected:
		WebSocketConnections.Dec()
	case client.WSSent:
		RecordWebSocketMessage("sent")
	case client.WSReceived:
		RecordWebSocketMessage("received")
	case client.WSDropped:
		RecordWebSocketMessage("dropped")
	}
}

var (
	_ client.Observer          = (*Observer)(nil)
	_ client.WebSocketObserver = (*Observer)(nil)
)
