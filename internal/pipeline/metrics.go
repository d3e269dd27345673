package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelscan_resolutions_total",
			Help: "Total number of label resolutions",
		},
		[]string{"input", "kind", "problem"},
	)

	resolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labelscan_resolution_duration_seconds",
			Help:    "Label resolution duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"input"},
	)

	recognitionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelscan_recognition_attempts_total",
			Help: "Recognizer calls by variant and status",
		},
		[]string{"variant", "status"}, // status: ok, failed
	)
)

func observe(input string, o Outcome, start time.Time) {
	problem := string(o.Problem)
	if problem == "" {
		problem = "none"
	}
	kind := "unresolved"
	if o.Result != nil {
		kind = o.Result.Kind().String()
	}
	resolutionsTotal.WithLabelValues(input, kind, problem).Inc()
	resolutionDuration.WithLabelValues(input).Observe(time.Since(start).Seconds())
}

func recordAttempt(a Attempt) {
	status := "ok"
	if a.Failed {
		status = "failed"
	}
	recognitionAttempts.WithLabelValues(a.VariantID, status).Inc()
}
