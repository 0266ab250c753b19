package tuning

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/models"
)

const (
	// A side must beat the other by this factor to win a test.
	abWinFactor = 1.05

	// Winner confidence grows from the base with the efficiency gap and is
	// capped below certainty.
	abConfidenceBase  = 0.7
	abConfidenceSlope = 2.0
	abConfidenceMax   = 0.95
)

// StartABTest opens a paired comparison for a recommendation: the control
// side carries the generation-time current value, the variant side the
// recommended one. The caller runs both sides, collects their metrics, and
// reports back through CompleteABTest.
func (o *Optimizer) StartABTest(recommendationID string, duration time.Duration) (models.ABTestResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[recommendationID]
	if !ok {
		o.logger.Warn("ab test for unknown recommendation", slog.String("id", recommendationID))
		return models.ABTestResult{}, false
	}

	now := time.Now().UTC()
	test := &models.ABTestResult{
		TestID:           uuid.NewString(),
		RecommendationID: rec.ID,
		Parameter:        rec.Parameter,
		ControlValue:     rec.CurrentValue,
		VariantValue:     rec.RecommendedValue,
		StartedAt:        now,
		EndTime:          now.Add(duration),
	}
	o.abTests[test.TestID] = test
	o.abOrder = append(o.abOrder, test.TestID)

	o.logger.Info("ab test started",
		slog.String("test_id", test.TestID),
		slog.String("recommendation_id", rec.ID),
		slog.String("parameter", test.Parameter),
		slog.Duration("duration", duration),
	)
	return cloneABTest(test), true
}

// CompleteABTest finalizes a test with caller-collected metrics and decides
// the winner. A test finalizes at most once; repeat calls return the stored
// result without touching it.
func (o *Optimizer) CompleteABTest(testID string, control, variant models.MetricsSnapshot) (models.ABTestResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	test, ok := o.abTests[testID]
	if !ok {
		o.logger.Warn("complete for unknown ab test", slog.String("test_id", testID))
		return models.ABTestResult{}, false
	}
	if test.IsComplete {
		o.logger.Warn("ab test already complete", slog.String("test_id", testID))
		return cloneABTest(test), false
	}

	controlCopy := control
	variantCopy := variant
	test.ControlMetrics = &controlCopy
	test.VariantMetrics = &variantCopy

	gap := math.Abs(variant.Efficiency - control.Efficiency)
	switch {
	case variant.Efficiency > control.Efficiency*abWinFactor:
		test.Winner = models.ABWinnerVariant
		test.ConfidenceLevel = math.Min(abConfidenceMax, abConfidenceBase+abConfidenceSlope*gap)
	case control.Efficiency > variant.Efficiency*abWinFactor:
		test.Winner = models.ABWinnerControl
		test.ConfidenceLevel = math.Min(abConfidenceMax, abConfidenceBase+abConfidenceSlope*gap)
	default:
		test.Winner = models.ABWinnerNone
		test.ConfidenceLevel = 0
	}
	test.IsComplete = true

	label := string(test.Winner)
	if label == "" {
		label = "none"
	}
	metrics.ObserveABTest(label)
	o.logger.Info("ab test completed",
		slog.String("test_id", testID),
		slog.String("winner", label),
		slog.Float64("confidence", test.ConfidenceLevel),
	)
	return cloneABTest(test), true
}

// ABTest returns a copy of the test with the given ID.
func (o *Optimizer) ABTest(testID string) (models.ABTestResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	test, ok := o.abTests[testID]
	if !ok {
		return models.ABTestResult{}, false
	}
	return cloneABTest(test), true
}

// ABTests returns copies of all tests in start order.
func (o *Optimizer) ABTests() []models.ABTestResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.ABTestResult, 0, len(o.abOrder))
	for _, id := range o.abOrder {
		if test, ok := o.abTests[id]; ok {
			out = append(out, cloneABTest(test))
		}
	}
	return out
}

func cloneABTest(test *models.ABTestResult) models.ABTestResult {
	out := *test
	if test.ControlMetrics != nil {
		control := *test.ControlMetrics
		out.ControlMetrics = &control
	}
	if test.VariantMetrics != nil {
		variant := *test.VariantMetrics
		out.VariantMetrics = &variant
	}
	return out
}
