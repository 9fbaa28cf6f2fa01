// Package observability holds the Prometheus metrics and the logger
// factory shared by the server and the worker.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photoflow",
		Name:      "photos_submitted_total",
		Help:      "Total number of photos accepted for processing",
	})

	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photoflow",
		Name:      "photos_processed_total",
		Help:      "Total number of photos leaving the pipeline, by outcome",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photoflow",
		Name:      "faces_detected_total",
		Help:      "Total number of face regions detected",
	})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photoflow",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to members, by band",
	}, []string{"band"})

	DuplicatesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photoflow",
		Name:      "duplicates_detected_total",
		Help:      "Total number of duplicate submissions, by kind",
	}, []string{"kind"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photoflow",
		Name:      "step_duration_seconds",
		Help:      "Duration of individual pipeline steps",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"step"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "photoflow",
		Name:      "queue_depth",
		Help:      "Number of photos per queue state",
	}, []string{"state"})

	SnapshotGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photoflow",
		Name:      "reference_snapshot_generation",
		Help:      "Generation counter of the active reference snapshot",
	})

	SnapshotEncodings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photoflow",
		Name:      "reference_snapshot_encodings",
		Help:      "Number of reference encodings in the active snapshot",
	})
)
