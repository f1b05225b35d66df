package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Message pipeline metrics
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages appended to the log",
		},
	)

	AppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_append_failures_total",
			Help: "Log appends that failed",
		},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages written durably by the worker",
		},
	)

	MessagesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_duplicate_total",
			Help: "Redelivered messages already present in the store",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_dropped_total",
			Help: "Malformed log entries acked without a durable row",
		},
	)

	MessagesAcked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_acked_total",
			Help: "Log entries acknowledged by the worker",
		},
	)

	EntriesTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_log_entries_trimmed_total",
			Help: "Log entries removed by trimming",
		},
	)

	// Worker metrics
	WorkerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_worker_cycle_duration_seconds",
			Help:    "Duration of one persistence worker cycle",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	WorkerRoomErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_worker_room_errors_total",
			Help: "Per-room persistence failures",
		},
	)

	WorkerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_worker_restarts_total",
			Help: "Times the persistence worker was restarted",
		},
	)

	RoomsRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_restored_total",
			Help: "Rooms reseeded into the log at startup",
		},
	)

	// Fanout metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connected_clients",
			Help: "Currently connected chat clients",
		},
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_deliveries_total",
			Help: "Payloads delivered to connected clients",
		},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_failures_total",
			Help: "Deliveries that failed or were dropped",
		},
	)

	InboundRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_inbound_rate_limited_total",
			Help: "Inbound websocket messages dropped by rate limiting",
		},
	)
)
