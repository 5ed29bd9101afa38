// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonido_emotion_model_loaded",
		Help: "1 once the classifier artifact is loaded and serving",
	})
	InFlightPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonido_emotion_inflight_predictions",
		Help: "Number of predictions currently being processed",
	})
)

// Counters
var (
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonido_emotion_predictions_total",
		Help: "Total predictions by input source and outcome",
	}, []string{"source", "outcome"})
	LabelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonido_emotion_labels_total",
		Help: "Total predicted labels",
	}, []string{"label"})
	AcquisitionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonido_emotion_acquisition_attempts_total",
		Help: "Remote acquisition strategy attempts by result",
	}, []string{"strategy", "result"})
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonido_emotion_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "code"})
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonido_emotion_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	})
	RecordsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonido_emotion_records_saved_total",
		Help: "Records persisted by source",
	}, []string{"source"})
)

// Histograms
var (
	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sonido_emotion_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
)

// Outcome label values for PredictionsTotal.
const (
	OutcomeScored        = "scored"
	OutcomeSilent        = "silent"
	OutcomeScoringFailed = "scoring_failed"
	OutcomeExtractFailed = "extract_failed"
	OutcomeRejected      = "rejected"
	OutcomeError         = "error"
)
