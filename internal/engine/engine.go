package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/models"
	"github.com/pulsekit/pulse-tuner/internal/utils"
)

// AlertCallback receives every emitted alert. Callbacks run synchronously
// after internal locks are released; a panicking callback propagates to the
// caller of the operation that triggered it.
type AlertCallback func(models.Alert)

// InsightCallback receives every stored insight. Same contract as AlertCallback.
type InsightCallback func(models.AnalyticsInsight)

// PatternAnalyzer inspects recent spike summaries for sustained trends.
type PatternAnalyzer interface {
	Analyze(history []models.SpikeSummary) (models.AnalyticsInsight, bool)
}

// Options configures the analytics engine. Zero values fall back to defaults.
type Options struct {
	BufferCap             int
	SpikeBufferCap        int
	SpikeImpactThreshold  float64
	DensityAlertThreshold float64
	AnalysisWindow        time.Duration
	HistoryCap            int
	AlertCap              int
	InsightCap            int
	BaseCost              float64
}

// Engine ingests impact-scored events into bounded ring buffers, classifies
// spikes in real time, runs the periodic analysis loop, and keeps the alert
// and insight logs.
type Engine struct {
	logger  *slog.Logger
	opts    Options
	pattern PatternAnalyzer

	onAlert   AlertCallback
	onInsight InsightCallback

	mu           sync.RWMutex
	events       *eventRing
	spikes       *eventRing
	countsByType map[string]int64
	totalEvents  int64
	highImpact   int64

	spikeHistory      []models.SpikeSummary
	balanceHistory    []models.BalanceReport
	efficiencyHistory []models.EfficiencyMetrics

	alerts   *alertLog
	insights *insightLog
}

// New constructs an Engine. The pattern analyzer and both callbacks may be
// nil, in which case pattern analysis and notifications are skipped.
func New(logger *slog.Logger, opts Options, pattern PatternAnalyzer, onAlert AlertCallback, onInsight InsightCallback) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BufferCap <= 0 {
		opts.BufferCap = 10000
	}
	if opts.SpikeBufferCap <= 0 {
		opts.SpikeBufferCap = 1000
	}
	if opts.SpikeImpactThreshold <= 0 {
		opts.SpikeImpactThreshold = 0.9
	}
	if opts.DensityAlertThreshold <= 0 {
		opts.DensityAlertThreshold = 5
	}
	if opts.AnalysisWindow <= 0 {
		opts.AnalysisWindow = 60 * time.Second
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = 100
	}
	if opts.AlertCap <= 0 {
		opts.AlertCap = 1000
	}
	if opts.InsightCap <= 0 {
		opts.InsightCap = 500
	}
	if opts.BaseCost <= 0 {
		opts.BaseCost = 1
	}

	return &Engine{
		logger:       logger,
		opts:         opts,
		pattern:      pattern,
		onAlert:      onAlert,
		onInsight:    onInsight,
		events:       newEventRing(opts.BufferCap),
		spikes:       newEventRing(opts.SpikeBufferCap),
		countsByType: make(map[string]int64),
		alerts:       newAlertLog(opts.AlertCap),
		insights:     newInsightLog(opts.InsightCap),
	}
}

// Ingest normalizes and buffers one event, updates cumulative counters, and
// runs spike detection. The event is never rejected; missing fields fall
// back to defaults.
func (e *Engine) Ingest(ev models.Event) {
	if ev.Type == "" {
		ev.Type = models.EventTypeUnknown
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}

	e.mu.Lock()
	e.events.push(ev)
	e.totalEvents++
	e.countsByType[ev.Type]++
	spike := ev.Impact >= e.opts.SpikeImpactThreshold
	var spikeAlert *models.Alert
	if spike {
		e.spikes.push(ev)
		e.highImpact++
		spikeAlert = e.spikeAlertLocked(ev)
	}
	e.mu.Unlock()

	metrics.ObserveIngest(spike)
	if spikeAlert != nil {
		e.emit(*spikeAlert)
	}
}

// IngestBatch ingests events sequentially with no atomicity; events ingested
// before a callback panic remain buffered.
func (e *Engine) IngestBatch(events []models.Event) {
	for _, ev := range events {
		e.Ingest(ev)
	}
}

// spikeAlertLocked evaluates the trailing spike density and, when it reaches
// the alert threshold, builds a CRITICAL alert for the triggering event.
// There is no suppression: every qualifying spike re-alerts while the
// density stays elevated.
func (e *Engine) spikeAlertLocked(ev models.Event) *models.Alert {
	now := time.Now().UTC()
	cutoff := now.Add(-e.opts.AnalysisWindow)
	count := e.spikes.countSince(cutoff)
	minutes := utils.DurationMinutes(cutoff, now)
	if minutes <= 0 {
		return nil
	}
	density := float64(count) / minutes
	if density < e.opts.DensityAlertThreshold {
		return nil
	}
	return &models.Alert{
		Severity:    models.SeverityCritical,
		InsightType: models.InsightSpikeDetected,
		Message:     fmt.Sprintf("spike density %.1f/min over trailing %.0fs window", density, e.opts.AnalysisWindow.Seconds()),
		Timestamp:   now,
		Data: map[string]any{
			"density":        density,
			"spike_count":    count,
			"window_seconds": e.opts.AnalysisWindow.Seconds(),
			"event":          ev,
		},
	}
}

// emit stores the alert and notifies the subscriber outside engine locks.
func (e *Engine) emit(alert models.Alert) models.Alert {
	stored := e.alerts.append(alert)
	metrics.ObserveAlert(string(stored.Severity))
	e.logger.Info("alert emitted",
		slog.String("id", stored.ID),
		slog.String("severity", string(stored.Severity)),
		slog.String("insight_type", string(stored.InsightType)),
		slog.String("message", stored.Message),
	)
	if e.onAlert != nil {
		e.onAlert(stored)
	}
	return stored
}

// EmitAlert records an externally raised alert and notifies the subscriber.
// The stored copy, with its assigned ID, is returned.
func (e *Engine) EmitAlert(alert models.Alert) models.Alert {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Severity == "" {
		alert.Severity = models.SeverityInfo
	}
	return e.emit(alert)
}

// StoreInsight records an insight and notifies the subscriber. The stored
// copy, with its assigned ID, is returned.
func (e *Engine) StoreInsight(insight models.AnalyticsInsight) models.AnalyticsInsight {
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}
	if insight.Severity == "" {
		insight.Severity = models.SeverityInfo
	}
	stored := e.insights.append(insight)
	metrics.ObserveInsight(string(stored.Type))
	e.logger.Info("insight stored",
		slog.String("id", stored.ID),
		slog.String("type", string(stored.Type)),
		slog.String("severity", string(stored.Severity)),
		slog.String("title", stored.Title),
	)
	if e.onInsight != nil {
		e.onInsight(stored)
	}
	return stored
}

// AcknowledgeAlert marks an alert as seen by user and reports whether the
// alert exists.
func (e *Engine) AcknowledgeAlert(id, user string) bool {
	ok := e.alerts.acknowledge(id, user)
	if !ok {
		e.logger.Warn("acknowledge for unknown alert", slog.String("id", id), slog.String("user", user))
	}
	return ok
}

// Alert returns the alert with the given ID.
func (e *Engine) Alert(id string) (models.Alert, bool) {
	return e.alerts.get(id)
}

// Alerts returns alerts matching the filter, most recent last.
func (e *Engine) Alerts(filter models.AlertFilter) []models.Alert {
	return e.alerts.list(filter)
}

// Insight returns the insight with the given ID.
func (e *Engine) Insight(id string) (models.AnalyticsInsight, bool) {
	return e.insights.get(id)
}

// Insights returns insights matching the filter, most recent last.
func (e *Engine) Insights(filter models.InsightFilter) []models.AnalyticsInsight {
	return e.insights.list(filter)
}

// Stats returns a point-in-time view of buffers, counters, and log sizes.
func (e *Engine) Stats() models.EngineStats {
	e.mu.RLock()
	counts := make(map[string]int64, len(e.countsByType))
	for typ, count := range e.countsByType {
		counts[typ] = count
	}
	stats := models.EngineStats{
		TotalEvents:     e.totalEvents,
		HighImpactCount: e.highImpact,
		CountsByType:    counts,
		BufferSize:      e.events.len(),
		BufferCap:       e.events.capacity(),
		SpikeBufferSize: e.spikes.len(),
		SpikeBufferCap:  e.spikes.capacity(),
	}
	e.mu.RUnlock()

	stats.AlertCount = e.alerts.count()
	stats.InsightCount = e.insights.count()
	return stats
}

// Window returns the configured trailing analysis window.
func (e *Engine) Window() time.Duration {
	return e.opts.AnalysisWindow
}
