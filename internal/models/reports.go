package models

import "time"

// SpikeSummary aggregates high-impact events over one trailing analysis window.
type SpikeSummary struct {
	WindowStart      time.Time
	WindowEnd        time.Time
	Count            int
	AvgImpact        float64
	MaxImpact        float64
	CountsByType     map[string]int
	DensityPerMinute float64
}

// BalanceReport describes how event volume distributes across types. It is
// derived from cumulative all-time counters rather than the trailing window;
// the asymmetry with the windowed reports is intentional.
type BalanceReport struct {
	GeneratedAt    time.Time
	TotalEvents    int64
	Fractions      map[string]float64
	ImbalanceRatio float64
	DominantType   string
	DominantShare  float64
	IsHealthy      bool
}

// EfficiencyMetrics scores how much of the trailing window's traffic was
// meaningful relative to its cost.
type EfficiencyMetrics struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	Total             int
	HighImpact        int
	LowImpact         int
	Efficiency        float64
	CostPerMeaningful float64
	LatencyMS         float64
}

// MetricsSnapshot carries the operational measurements callers supply when
// applying, evaluating, or A/B testing a recommendation.
type MetricsSnapshot struct {
	Efficiency  float64
	TotalEvents int64
	LatencyMS   float64
	CapturedAt  time.Time
}

// EngineStats is a point-in-time view of buffer occupancy and counters.
type EngineStats struct {
	TotalEvents     int64
	HighImpactCount int64
	CountsByType    map[string]int64
	BufferSize      int
	BufferCap       int
	SpikeBufferSize int
	SpikeBufferCap  int
	AlertCount      int
	InsightCount    int
}
