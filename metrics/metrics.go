package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulator metrics
	SimulatorTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jjm_simulator_ticks_total",
			Help: "Total number of simulator ticks executed",
		},
	)

	SimulatorTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jjm_simulator_tick_duration_seconds",
			Help:    "Time spent generating and applying one tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_readings_total",
			Help: "Total number of sensor readings by type, status and source",
		},
		[]string{"type", "status", "source"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"severity"},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_reading_anomalies_total",
			Help: "Readings flagged by the rolling-window anomaly detector",
		},
		[]string{"type"},
	)

	SensorsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jjm_sensors",
			Help: "Current number of sensors by status",
		},
		[]string{"status"},
	)

	StaleSensors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jjm_sensors_stale",
			Help: "Sensors that stopped reporting",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_notifications_total",
			Help: "Alert notifications by sink and result",
		},
		[]string{"sink", "result"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jjm_notifications_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full",
		},
	)

	// Archive metrics
	ArchiveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_archive_writes_total",
			Help: "Archive batch writes by result",
		},
		[]string{"result"},
	)

	ArchiveBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jjm_archive_buffer_size",
			Help: "Readings waiting to be archived",
		},
	)

	// Real-time metrics
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jjm_realtime_clients",
			Help: "Connected real-time websocket clients",
		},
	)

	RealtimeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_realtime_messages_total",
			Help: "Real-time messages by type and direction",
		},
		[]string{"type", "direction"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jjm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jjm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
