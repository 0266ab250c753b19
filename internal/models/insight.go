package models

import "time"

// InsightType classifies what a detector or the pattern analyzer observed.
type InsightType string

const (
	InsightSpikeDetected  InsightType = "SPIKE_DETECTED"
	InsightImbalance      InsightType = "IMBALANCE"
	InsightEfficiencyDrop InsightType = "EFFICIENCY_DROP"
	InsightAnomaly        InsightType = "ANOMALY"
)

// AnalyticsInsight is a synthesized observation derived from trend data,
// carrying suggested remediations for the tuning layer.
type AnalyticsInsight struct {
	ID              string
	Type            InsightType
	Title           string
	Description     string
	Severity        Severity
	Metrics         map[string]float64
	Recommendations []string
	CreatedAt       time.Time
}

// InsightFilter narrows insight queries. Zero values leave a dimension unfiltered.
type InsightFilter struct {
	Type     InsightType
	Severity Severity
	Limit    int
}
