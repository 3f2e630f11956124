package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_pipeline_tasks_total",
		Help: "Tasks processed by the consume loop, by outcome.",
	}, []string{"outcome"})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedq_pipeline_task_duration_seconds",
		Help:    "End-to-end latency of completed tasks.",
		Buckets: prometheus.DefBuckets,
	})

	loopErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedq_pipeline_loop_errors_total",
		Help: "Loop-level failures (queue unreachable, ack failures).",
	})

	analyzerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_pipeline_analyzer_failures_total",
		Help: "Feedback analyzer failures, logged and swallowed.",
	}, []string{"analyzer"})
)
