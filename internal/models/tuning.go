package models

import "time"

// RecommendationStatus tracks a tuning recommendation through its lifecycle.
type RecommendationStatus string

const (
	StatusPending    RecommendationStatus = "PENDING"
	StatusApproved   RecommendationStatus = "APPROVED"
	StatusRejected   RecommendationStatus = "REJECTED"
	StatusApplied    RecommendationStatus = "APPLIED"
	StatusFailed     RecommendationStatus = "FAILED"
	StatusRolledBack RecommendationStatus = "ROLLED_BACK"
)

// EvaluationResult classifies the measured outcome of an applied recommendation.
type EvaluationResult string

const (
	ResultPending  EvaluationResult = "pending"
	ResultPositive EvaluationResult = "positive"
	ResultNegative EvaluationResult = "negative"
	ResultNeutral  EvaluationResult = "neutral"
)

// TuningRecommendation proposes one bounded adjustment to a tunable parameter.
type TuningRecommendation struct {
	ID                  string
	InsightID           string
	InsightType         InsightType
	Parameter           string
	CurrentValue        float64
	RecommendedValue    float64
	Confidence          float64
	Rationale           string
	ExpectedImprovement string
	Status              RecommendationStatus
	CreatedAt           time.Time
	AppliedAt           time.Time
	EscalatedAt         time.Time
	BeforeMetrics       *MetricsSnapshot
	AfterMetrics        *MetricsSnapshot
}

// TuningHistoryEntry records one successful application and its measured outcome.
type TuningHistoryEntry struct {
	ID               string
	RecommendationID string
	Parameter        string
	OldValue         float64
	NewValue         float64
	AppliedBy        string
	AppliedAt        time.Time
	Result           EvaluationResult
	BeforeMetrics    *MetricsSnapshot
	AfterMetrics     *MetricsSnapshot
	Notes            []string
}

// ABWinner names the side a completed A/B test favoured.
type ABWinner string

const (
	ABWinnerControl ABWinner = "control"
	ABWinnerVariant ABWinner = "variant"
	ABWinnerNone    ABWinner = ""
)

// ABTestResult is a paired comparison of a parameter's current value against
// its recommended one, fed by caller-collected metrics.
type ABTestResult struct {
	TestID           string
	RecommendationID string
	Parameter        string
	ControlValue     float64
	VariantValue     float64
	StartedAt        time.Time
	EndTime          time.Time
	ControlMetrics   *MetricsSnapshot
	VariantMetrics   *MetricsSnapshot
	Winner           ABWinner
	ConfidenceLevel  float64
	IsComplete       bool
}

// AccuracyStats reports how often applied recommendations measured positive.
type AccuracyStats struct {
	SuccessCount int64
	TotalCount   int64
	SuccessRate  float64
	Target       float64
	MeetsTarget  bool
}

// ParameterValue is a read-only snapshot of one tunable and its bounds.
type ParameterValue struct {
	Name         string
	CurrentValue float64
	DefaultValue float64
	Min          float64
	Max          float64
}
