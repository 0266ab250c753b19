package patterns

import (
	"fmt"
	"log/slog"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

const (
	// lookback is how many recent spike summaries a trend is judged over.
	lookback = 3

	// sustainedDensityFactor scales the alert threshold down for the trend
	// check: a mean density above this fraction of the threshold counts as
	// sustained pressure even when no single window crossed it.
	sustainedDensityFactor = 0.7
)

// Analyzer inspects short histories of periodic summaries for sustained
// trends and synthesizes insights from them.
type Analyzer struct {
	logger           *slog.Logger
	densityThreshold float64
}

// NewAnalyzer constructs an Analyzer judging trends against the given
// density alert threshold.
func NewAnalyzer(logger *slog.Logger, densityThreshold float64) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if densityThreshold <= 0 {
		densityThreshold = 5
	}
	return &Analyzer{logger: logger, densityThreshold: densityThreshold}
}

// Analyze examines the most recent spike summaries and reports a sustained
// high-density insight when their mean density stays near the alert
// threshold. The returned insight carries no ID; the insight log assigns
// one on store.
func (a *Analyzer) Analyze(history []models.SpikeSummary) (models.AnalyticsInsight, bool) {
	if len(history) < lookback {
		return models.AnalyticsInsight{}, false
	}

	recent := history[len(history)-lookback:]
	total := 0.0
	for _, summary := range recent {
		total += summary.DensityPerMinute
	}
	mean := total / float64(lookback)
	limit := sustainedDensityFactor * a.densityThreshold
	if mean <= limit {
		return models.AnalyticsInsight{}, false
	}

	a.logger.Debug("sustained spike density detected",
		slog.Float64("mean_density", mean),
		slog.Float64("limit", limit),
	)

	return models.AnalyticsInsight{
		Type:     models.InsightSpikeDetected,
		Severity: models.SeverityWarning,
		Title:    "Sustained high spike density",
		Description: fmt.Sprintf("mean spike density %.1f/min across the last %d windows stayed above %.1f/min",
			mean, lookback, limit),
		Metrics: map[string]float64{
			"mean_density":      mean,
			"density_threshold": a.densityThreshold,
			"windows":           lookback,
		},
		Recommendations: []string{
			"increase attack_time",
			"review event sources",
			"enable adaptive rate limiting",
		},
	}, true
}
