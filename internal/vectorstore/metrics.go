package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upsertTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_vectorstore_upsert_total",
		Help: "Total point upserts by namespace and result.",
	}, []string{"namespace", "result"})

	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_vectorstore_search_total",
		Help: "Total similarity searches by namespace and result.",
	}, []string{"namespace", "result"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedq_vectorstore_search_duration_seconds",
		Help:    "Similarity search latency by namespace.",
		Buckets: prometheus.DefBuckets,
	}, []string{"namespace"})

	pointsStored = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedq_vectorstore_points",
		Help: "Points stored per namespace, updated on Stats calls.",
	}, []string{"namespace"})
)
