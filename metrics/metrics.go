package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_events_processed_total",
			Help: "Total number of security events processed",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"alert_type", "severity"},
	)

	RulesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_rules_matched_total",
			Help: "Total number of correlation rule matches",
		},
		[]string{"rule_id"},
	)

	EnrichmentsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_enrichments_applied_total",
			Help: "Total number of enrichment stage executions",
		},
		[]string{"stage", "result"},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_event_processing_duration_seconds",
			Help:    "Time taken to process one event end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	WindowEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_window_events",
			Help: "Number of events currently retained in the window store",
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_anomalies_detected_total",
			Help: "Total number of traffic anomalies detected",
		},
		[]string{"anomaly_type", "severity"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_worker_pool_tasks_processed_total",
			Help: "Total number of tasks completed by the batch worker pool",
		},
	)

	WorkerPoolQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_worker_pool_queue_depth",
			Help: "Current depth of the batch worker pool queue",
		},
	)
)
