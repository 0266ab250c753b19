package tuning

import (
	"fmt"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

// Direction of a proposed adjustment.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// adjustment pairs a parameter with a fixed bounded move.
type adjustment struct {
	parameter string
	direction Direction
	magnitude float64
}

// insightAdjustments maps each insight type to the parameter moves it
// triggers. Insight types absent from the table produce no recommendations.
var insightAdjustments = map[models.InsightType][]adjustment{
	models.InsightSpikeDetected: {
		{parameter: "attack_time", direction: DirectionDecrease, magnitude: 0.1},
		{parameter: "impact_threshold", direction: DirectionIncrease, magnitude: 0.05},
	},
	models.InsightImbalance: {
		{parameter: "batch_size", direction: DirectionIncrease, magnitude: 10},
		{parameter: "tick_rate", direction: DirectionDecrease, magnitude: 5},
	},
	models.InsightEfficiencyDrop: {
		{parameter: "batch_size", direction: DirectionIncrease, magnitude: 20},
		{parameter: "worker_count", direction: DirectionIncrease, magnitude: 1},
		{parameter: "queue_depth", direction: DirectionIncrease, magnitude: 100},
	},
	models.InsightAnomaly: {
		{parameter: "impact_threshold", direction: DirectionDecrease, magnitude: 0.05},
	},
}

type rationaleKey struct {
	insight   models.InsightType
	parameter string
}

type rationaleEntry struct {
	rationale   string
	improvement string
}

var rationales = map[rationaleKey]rationaleEntry{
	{models.InsightSpikeDetected, "attack_time"}: {
		rationale:   "A faster attack shortens the reaction to spike onsets",
		improvement: "Reduced spike-to-alert latency",
	},
	{models.InsightSpikeDetected, "impact_threshold"}: {
		rationale:   "Raising the impact threshold filters borderline spikes",
		improvement: "Fewer low-value spike alerts",
	},
	{models.InsightImbalance, "batch_size"}: {
		rationale:   "Larger batches smooth an uneven type distribution",
		improvement: "More uniform processing mix",
	},
	{models.InsightImbalance, "tick_rate"}: {
		rationale:   "A lower tick rate gives slower event types time to accumulate",
		improvement: "Reduced type skew per cycle",
	},
	{models.InsightEfficiencyDrop, "batch_size"}: {
		rationale:   "Larger batches amortise per-event overhead",
		improvement: "Lower cost per meaningful event",
	},
	{models.InsightEfficiencyDrop, "worker_count"}: {
		rationale:   "An extra worker absorbs queued low-value traffic",
		improvement: "Higher throughput headroom",
	},
	{models.InsightEfficiencyDrop, "queue_depth"}: {
		rationale:   "A deeper queue rides out bursts without drops",
		improvement: "Fewer events lost at peak",
	},
	{models.InsightAnomaly, "impact_threshold"}: {
		rationale:   "Lowering the impact threshold widens anomaly capture",
		improvement: "Earlier anomaly visibility",
	},
}

// rationaleFor returns the rationale and expected-improvement text for a
// mapping entry, falling back to generic wording for unlisted pairs.
func rationaleFor(insight models.InsightType, parameter string) (string, string) {
	if entry, ok := rationales[rationaleKey{insight, parameter}]; ok {
		return entry.rationale, entry.improvement
	}
	return fmt.Sprintf("Adjust %s in response to %s", parameter, insight),
		"Improved overall pipeline health"
}
