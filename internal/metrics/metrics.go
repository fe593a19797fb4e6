// Package metrics declares the prometheus collectors shared by the scanning
// packages. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recognition metrics
	RecognitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordscan_recognitions_total",
			Help: "Total number of recognition runs",
		},
		[]string{"status"}, // status: ok, error
	)

	RecognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wordscan_recognition_duration_seconds",
			Help:    "Text recognition duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	CandidatesExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wordscan_candidates_extracted",
			Help:    "Number of address candidates extracted per recognition",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)

	// Validation metrics
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordscan_validations_total",
			Help: "Total number of candidate validations",
		},
		[]string{"result"}, // result: confirmed, rejected, error, cached
	)

	// Frame pipeline metrics
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordscan_frames_total",
			Help: "Total number of camera frames seen by the frame pipeline",
		},
		[]string{"outcome"}, // outcome: submitted, dropped, failed
	)

	// Orchestrator metrics
	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordscan_phase_transitions_total",
			Help: "Total number of scanner phase transitions",
		},
		[]string{"phase"},
	)

	AddressesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordscan_addresses_found_total",
			Help: "Total number of newly confirmed addresses",
		},
	)
)
