package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики процесса. Регистрируются в prometheus.DefaultRegisterer
// и отдаются через /metrics.
var (
	TasksDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udu_worker_tasks_total",
		Help: "Tasks dequeued by the worker, by method",
	}, []string{"method"})

	DequeueRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udu_worker_dequeue_retries_total",
		Help: "Dequeue attempts retried after a transient bus error",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udu_worker_jobs_total",
		Help: "Jobs run through the processor, by outcome",
	}, []string{"outcome"})

	ClaimResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udu_worker_claims_total",
		Help: "Claim guard decisions, by result",
	}, []string{"result"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udu_callbacks_total",
		Help: "Callback deliveries, by kind and result",
	}, []string{"kind", "result"})

	MalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udu_queue_malformed_total",
		Help: "Messages acknowledged and dropped because they did not decode",
	})

	TelemetryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udu_telemetry_dropped_total",
		Help: "Log entries dropped after the telemetry retry budget ran out",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udu_server_submissions_total",
		Help: "Upload submissions handled by the front door, by HTTP status",
	}, []string{"status"})
)
