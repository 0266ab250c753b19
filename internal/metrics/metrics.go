package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analysis iterations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels analysis iterations that panicked and were recovered.
	OutcomeError = "error"
)

var (
	eventsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "events_ingested_total",
			Help:      "Total number of events accepted into the ring buffer.",
		},
	)

	spikesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "spikes_detected_total",
			Help:      "Total number of events classified as spikes on ingest.",
		},
	)

	alertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "alerts_emitted_total",
			Help:      "Total number of alerts emitted, partitioned by severity.",
		},
		[]string{"severity"},
	)

	insightsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "insights_emitted_total",
			Help:      "Total number of insights emitted, partitioned by type.",
		},
		[]string{"type"},
	)

	analysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "analysis_runs_total",
			Help:      "Total number of periodic analysis iterations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pulse_tuner",
			Name:      "analysis_seconds",
			Help:      "Periodic analysis iteration latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	recommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "recommendations_total",
			Help:      "Total number of recommendation lifecycle transitions, partitioned by status.",
		},
		[]string{"status"},
	)

	abTestsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "ab_tests_completed_total",
			Help:      "Total number of completed A/B tests, partitioned by winner.",
		},
		[]string{"winner"},
	)

	feedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_tuner",
			Name:      "feed_events_total",
			Help:      "Total number of events pulled from the upstream telemetry feed.",
		},
	)
)

// Register attaches pulse-tuner collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsIngestedTotal,
		spikesDetectedTotal,
		alertsEmittedTotal,
		insightsEmittedTotal,
		analysisRunsTotal,
		analysisDurationSeconds,
		recommendationsTotal,
		abTestsCompletedTotal,
		feedEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIngest records one accepted event and whether it qualified as a spike.
func ObserveIngest(spike bool) {
	eventsIngestedTotal.Inc()
	if spike {
		spikesDetectedTotal.Inc()
	}
}

// ObserveAlert records an emitted alert by severity.
func ObserveAlert(severity string) {
	alertsEmittedTotal.WithLabelValues(severity).Inc()
}

// ObserveInsight records an emitted insight by type.
func ObserveInsight(insightType string) {
	insightsEmittedTotal.WithLabelValues(insightType).Inc()
}

// ObserveAnalysisRun records a periodic analysis iteration and its outcome label.
func ObserveAnalysisRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysisRunsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveRecommendation records a recommendation entering the given status.
func ObserveRecommendation(status string) {
	recommendationsTotal.WithLabelValues(status).Inc()
}

// ObserveABTest records a completed A/B test by winning side.
func ObserveABTest(winner string) {
	if winner == "" {
		winner = "none"
	}
	abTestsCompletedTotal.WithLabelValues(winner).Inc()
}

// ObserveFeedBatch records events pulled from the upstream feed.
func ObserveFeedBatch(count int) {
	if count > 0 {
		feedEventsTotal.Add(float64(count))
	}
}
