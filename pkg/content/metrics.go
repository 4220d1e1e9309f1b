package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retrievals counts Retrieve calls by variant and outcome
	// (hit, miss, shared, error).
	Retrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubserver_content_retrievals_total",
			Help: "Total number of content retrievals",
		},
		[]string{"variant", "outcome"},
	)

	// RetrievalDuration tracks retrieval latency by variant and source.
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pubserver_content_retrieval_duration_seconds",
			Help:    "Content retrieval duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"variant", "source"},
	)

	// PayloadBytes tracks the size of transformed payloads on the miss path.
	PayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pubserver_content_payload_bytes",
			Help:    "Size of transformed content payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"variant", "stage"},
	)
)
