// Package queue provides Prometheus metrics for queue monitoring.
package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksEnqueued counts enqueued tasks by priority.
	tasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks enqueued, by priority",
		},
		[]string{"priority"},
	)

	// tasksDequeued counts tasks handed to consumers by priority.
	tasksDequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "tasks_dequeued_total",
			Help:      "Total number of tasks dequeued for processing, by priority",
		},
		[]string{"priority"},
	)

	// tasksCompleted counts successful task completions.
	tasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed successfully",
		},
	)

	// tasksFailed counts terminal task failures (retry budget exhausted).
	tasksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that exhausted their retry budget",
		},
	)

	// tasksRetried counts requeues after a recoverable failure.
	tasksRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "tasks_retried_total",
			Help:      "Total number of tasks requeued after a failure, by priority",
		},
		[]string{"priority"},
	)

	// queueDepth tracks list length per priority, refreshed on Stats.
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "embedq",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current queue depth by priority (refreshed on stats collection)",
		},
		[]string{"priority"},
	)
)
