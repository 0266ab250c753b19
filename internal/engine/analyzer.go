package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/models"
	"github.com/pulsekit/pulse-tuner/internal/utils"
)

const (
	// Impact bounds classifying a single event for efficiency accounting.
	highImpactMin = 0.7
	lowImpactMax  = 0.3

	// An efficiency below efficiencyAlertMin across more than
	// efficiencyAlertMinEvents windowed events raises a WARNING.
	efficiencyAlertMin       = 0.3
	efficiencyAlertMinEvents = 10

	// Synthetic processing-latency model for the efficiency report.
	simulatedBaseLatencyMS     = 50.0
	simulatedPerEventLatencyMS = 0.1

	// A dominant type above this share marks the distribution unhealthy.
	balanceHealthyShare = 0.8

	// Pause after a panicked analysis pass before the loop resumes.
	analyzerBackoff = 5 * time.Second
)

// RunAnalyzer blocks running the periodic analysis loop until ctx is
// cancelled. Each cycle sleeps one analysis window, then runs a full pass
// over the buffers as of that instant. A panic inside a pass is recovered
// and followed by a backoff; the loop itself never exits on error.
func (e *Engine) RunAnalyzer(ctx context.Context) {
	e.logger.Info("periodic analyzer started", slog.Duration("window", e.opts.AnalysisWindow))
	timer := time.NewTimer(e.opts.AnalysisWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("periodic analyzer stopped")
			return
		case <-timer.C:
		}

		if !e.runGuarded() {
			select {
			case <-ctx.Done():
				e.logger.Info("periodic analyzer stopped")
				return
			case <-time.After(analyzerBackoff):
			}
		}
		timer.Reset(e.opts.AnalysisWindow)
	}
}

// runGuarded executes one analysis pass, converting a panic into a logged
// failure. It reports whether the pass completed.
func (e *Engine) runGuarded() (completed bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveAnalysisRun(time.Since(start), metrics.OutcomeError)
			e.logger.Error("analysis pass panicked", slog.Any("panic", r))
			completed = false
		}
	}()

	summary, balance, efficiency := e.RunAnalysisOnce()
	metrics.ObserveAnalysisRun(time.Since(start), metrics.OutcomeSuccess)
	e.logger.Debug("analysis pass complete",
		slog.Int("spikes", summary.Count),
		slog.Float64("density", summary.DensityPerMinute),
		slog.Float64("imbalance", balance.ImbalanceRatio),
		slog.Float64("efficiency", efficiency.Efficiency),
	)
	return true
}

// RunAnalysisOnce computes one full analysis pass over the current buffers:
// spike summary, balance report, efficiency metrics, then pattern analysis.
// Threshold alerts and pattern insights are emitted along the way.
func (e *Engine) RunAnalysisOnce() (models.SpikeSummary, models.BalanceReport, models.EfficiencyMetrics) {
	now := time.Now().UTC()

	summary := e.summarizeSpikes(now)

	balanceAlert, balance := e.reportBalance(now)
	if balanceAlert != nil {
		e.emit(*balanceAlert)
	}

	efficiencyAlert, efficiency := e.measureEfficiency(now)
	if efficiencyAlert != nil {
		e.emit(*efficiencyAlert)
	}

	e.analyzePatterns()
	return summary, balance, efficiency
}

// summarizeSpikes aggregates the spike buffer over the trailing window and
// appends the result to the bounded summary history.
func (e *Engine) summarizeSpikes(now time.Time) models.SpikeSummary {
	cutoff := now.Add(-e.opts.AnalysisWindow)

	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	sum := 0.0
	maxImpact := 0.0
	perType := make(map[string]int)
	e.spikes.eachSince(cutoff, func(ev models.Event) {
		count++
		sum += ev.Impact
		if ev.Impact > maxImpact {
			maxImpact = ev.Impact
		}
		perType[ev.Type]++
	})

	summary := models.SpikeSummary{
		WindowStart:  cutoff,
		WindowEnd:    now,
		Count:        count,
		MaxImpact:    maxImpact,
		CountsByType: perType,
	}
	if count > 0 {
		summary.AvgImpact = sum / float64(count)
	}
	if minutes := utils.DurationMinutes(cutoff, now); minutes > 0 {
		summary.DensityPerMinute = float64(count) / minutes
	}

	e.spikeHistory = append(e.spikeHistory, summary)
	if len(e.spikeHistory) > e.opts.HistoryCap {
		copy(e.spikeHistory[0:], e.spikeHistory[1:])
		e.spikeHistory = e.spikeHistory[:e.opts.HistoryCap]
	}
	return summary
}

// reportBalance derives the type-distribution report from the cumulative
// all-time counters. The balance view is deliberately not windowed, unlike
// the spike and efficiency reports. A WARNING alert is returned when one
// type dominates.
func (e *Engine) reportBalance(now time.Time) (*models.Alert, models.BalanceReport) {
	e.mu.Lock()
	report := models.BalanceReport{
		GeneratedAt: now,
		TotalEvents: e.totalEvents,
		Fractions:   make(map[string]float64, len(e.countsByType)),
		IsHealthy:   true,
	}
	if e.totalEvents > 0 && len(e.countsByType) > 0 {
		numTypes := float64(len(e.countsByType))
		mean := 1.0 / numTypes
		variance := 0.0
		for typ, count := range e.countsByType {
			fraction := float64(count) / float64(e.totalEvents)
			report.Fractions[typ] = fraction
			variance += (fraction - mean) * (fraction - mean)
			if fraction > report.DominantShare {
				report.DominantShare = fraction
				report.DominantType = typ
			}
		}
		variance /= numTypes
		report.ImbalanceRatio = math.Min(1, variance*numTypes*4)
		report.IsHealthy = report.DominantShare <= balanceHealthyShare
	}

	e.balanceHistory = append(e.balanceHistory, report)
	if len(e.balanceHistory) > e.opts.HistoryCap {
		copy(e.balanceHistory[0:], e.balanceHistory[1:])
		e.balanceHistory = e.balanceHistory[:e.opts.HistoryCap]
	}
	e.mu.Unlock()

	var alert *models.Alert
	if !report.IsHealthy {
		alert = &models.Alert{
			Severity:    models.SeverityWarning,
			InsightType: models.InsightImbalance,
			Message: fmt.Sprintf("event type %q dominates with %.0f%% of traffic (imbalance ratio %.2f)",
				report.DominantType, report.DominantShare*100, report.ImbalanceRatio),
			Timestamp: now,
			Data: map[string]any{
				"dominant_type":   report.DominantType,
				"dominant_share":  report.DominantShare,
				"imbalance_ratio": report.ImbalanceRatio,
			},
		}
	}
	return alert, report
}

// measureEfficiency scores the trailing window's traffic and appends the
// result to the bounded history. A WARNING alert is returned when
// efficiency drops below the floor on meaningful volume.
func (e *Engine) measureEfficiency(now time.Time) (*models.Alert, models.EfficiencyMetrics) {
	cutoff := now.Add(-e.opts.AnalysisWindow)

	e.mu.Lock()
	total, high, low := 0, 0, 0
	e.events.eachSince(cutoff, func(ev models.Event) {
		total++
		if ev.Impact > highImpactMin {
			high++
		}
		if ev.Impact < lowImpactMax {
			low++
		}
	})

	m := models.EfficiencyMetrics{
		WindowStart: cutoff,
		WindowEnd:   now,
		Total:       total,
		HighImpact:  high,
		LowImpact:   low,
		LatencyMS:   simulatedBaseLatencyMS + simulatedPerEventLatencyMS*float64(total),
	}
	if total > 0 {
		m.Efficiency = float64(high) / float64(total)
	}
	if high > 0 {
		m.CostPerMeaningful = e.opts.BaseCost * float64(total) / float64(high)
	} else {
		m.CostPerMeaningful = math.Inf(1)
	}

	e.efficiencyHistory = append(e.efficiencyHistory, m)
	if len(e.efficiencyHistory) > e.opts.HistoryCap {
		copy(e.efficiencyHistory[0:], e.efficiencyHistory[1:])
		e.efficiencyHistory = e.efficiencyHistory[:e.opts.HistoryCap]
	}
	e.mu.Unlock()

	var alert *models.Alert
	if m.Efficiency < efficiencyAlertMin && total > efficiencyAlertMinEvents {
		alert = &models.Alert{
			Severity:    models.SeverityWarning,
			InsightType: models.InsightEfficiencyDrop,
			Message: fmt.Sprintf("efficiency %.2f below %.2f across %d events",
				m.Efficiency, efficiencyAlertMin, total),
			Timestamp: now,
			Data: map[string]any{
				"efficiency":  m.Efficiency,
				"high_impact": high,
				"low_impact":  low,
				"total":       total,
			},
		}
	}
	return alert, m
}

// analyzePatterns hands the recent spike summaries to the pattern analyzer
// and stores whatever insight it produces.
func (e *Engine) analyzePatterns() {
	if e.pattern == nil {
		return
	}

	e.mu.RLock()
	history := make([]models.SpikeSummary, len(e.spikeHistory))
	copy(history, e.spikeHistory)
	e.mu.RUnlock()

	insight, ok := e.pattern.Analyze(history)
	if !ok {
		return
	}
	e.StoreInsight(insight)
}

// SpikeHistory returns a copy of the recorded spike summaries, oldest first.
func (e *Engine) SpikeHistory() []models.SpikeSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SpikeSummary, len(e.spikeHistory))
	copy(out, e.spikeHistory)
	return out
}

// BalanceHistory returns a copy of the recorded balance reports, oldest first.
func (e *Engine) BalanceHistory() []models.BalanceReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.BalanceReport, len(e.balanceHistory))
	copy(out, e.balanceHistory)
	return out
}

// EfficiencyHistory returns a copy of the recorded efficiency metrics, oldest first.
func (e *Engine) EfficiencyHistory() []models.EfficiencyMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.EfficiencyMetrics, len(e.efficiencyHistory))
	copy(out, e.efficiencyHistory)
	return out
}
