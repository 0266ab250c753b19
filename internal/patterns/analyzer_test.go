package patterns

import (
	"strings"
	"testing"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

func summaries(densities ...float64) []models.SpikeSummary {
	out := make([]models.SpikeSummary, 0, len(densities))
	for _, d := range densities {
		out = append(out, models.SpikeSummary{DensityPerMinute: d})
	}
	return out
}

func TestAnalyzeNeedsHistory(t *testing.T) {
	a := NewAnalyzer(nil, 5)
	if _, ok := a.Analyze(summaries(9, 9)); ok {
		t.Fatalf("expected no insight with only 2 windows")
	}
	if _, ok := a.Analyze(nil); ok {
		t.Fatalf("expected no insight without history")
	}
}

func TestAnalyzeAtLimit(t *testing.T) {
	a := NewAnalyzer(nil, 5)
	// mean exactly 0.7 of the threshold is not above it
	if _, ok := a.Analyze(summaries(3.5, 3.5, 3.5)); ok {
		t.Fatalf("expected no insight at the limit")
	}
}

func TestAnalyzeSustainedDensity(t *testing.T) {
	a := NewAnalyzer(nil, 5)
	insight, ok := a.Analyze(summaries(1, 1, 4, 4, 4))
	if !ok {
		t.Fatalf("expected insight from the last three windows")
	}
	if insight.Type != models.InsightSpikeDetected {
		t.Fatalf("expected spike insight type, got %s", insight.Type)
	}
	if insight.Severity != models.SeverityWarning {
		t.Fatalf("expected WARNING severity, got %s", insight.Severity)
	}
	if insight.Metrics["mean_density"] != 4 {
		t.Fatalf("expected mean density 4, got %v", insight.Metrics["mean_density"])
	}
	if insight.Metrics["density_threshold"] != 5 {
		t.Fatalf("expected threshold 5, got %v", insight.Metrics["density_threshold"])
	}
	if len(insight.Recommendations) != 3 || insight.Recommendations[0] != "increase attack_time" {
		t.Fatalf("unexpected recommendations: %v", insight.Recommendations)
	}
	if !strings.Contains(insight.Description, "4.0/min") {
		t.Fatalf("unexpected description: %q", insight.Description)
	}
	if insight.ID != "" {
		t.Fatalf("expected unassigned ID, got %q", insight.ID)
	}
}

func TestAnalyzeEarlierWindowsIgnored(t *testing.T) {
	a := NewAnalyzer(nil, 5)
	// high density further back must not trigger on its own
	if _, ok := a.Analyze(summaries(9, 9, 9, 0, 0, 0)); ok {
		t.Fatalf("expected older windows to be ignored")
	}
}
