package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_models_embed_total",
		Help: "Provider embedding calls by model and result.",
	}, []string{"model", "result"})

	embedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedq_models_embed_duration_seconds",
		Help:    "Provider embedding call latency by model.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	cascadeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_models_cascade_fallback_total",
		Help: "Tier failures that triggered a fallback attempt.",
	}, []string{"tier"})

	catalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedq_models_catalog_size",
		Help: "Embedding-capable models found in the last catalog refresh.",
	})
)
