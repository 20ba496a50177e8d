package analysis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_tracker_analyses_total",
			Help: "Receipt analyses by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receipt_tracker_analysis_duration_seconds",
			Help:    "Receipt analysis latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)
)

type instrumented struct {
	Analyzer
}

// Instrument records count and latency of every Analyze call.
func Instrument(a Analyzer) Analyzer {
	return instrumented{a}
}

func (i instrumented) Analyze(ctx context.Context, image string) (*Result, error) {
	start := time.Now()
	res, err := i.Analyzer.Analyze(ctx, image)
	analysisDuration.WithLabelValues(i.Name()).Observe(time.Since(start).Seconds())

	outcome := "error"
	switch {
	case err != nil:
	case res.IsAuthentic:
		outcome = "authentic"
	default:
		outcome = "suspicious"
	}
	analysesTotal.WithLabelValues(i.Name(), outcome).Inc()
	return res, err
}
