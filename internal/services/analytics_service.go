package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/engine"
	"github.com/pulsekit/pulse-tuner/internal/models"
	"github.com/pulsekit/pulse-tuner/internal/patterns"
	"github.com/pulsekit/pulse-tuner/internal/tuning"
	"github.com/pulsekit/pulse-tuner/internal/utils"
)

// Options configures the analytics service facade.
type Options struct {
	Engine engine.Options

	// AutoGenerate turns stored insights into tuning recommendations as
	// they are produced.
	AutoGenerate bool

	// Optional subscriber callbacks, invoked after the service's own
	// handling. They run synchronously on the emitting goroutine.
	OnAlert   engine.AlertCallback
	OnInsight engine.InsightCallback
}

// AnalyticsService composes the analytics engine, the pattern analyzer and
// the tuning optimizer behind one in-process facade and owns the periodic
// analysis loop.
type AnalyticsService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	optimizer *tuning.Optimizer
	autoGen   bool
	onAlert   engine.AlertCallback
	onInsight engine.InsightCallback
	latencies *utils.LatencyTracker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnalyticsService constructs the service facade. params backs the
// optimizer; a nil value falls back to an in-memory store with registry
// defaults.
func NewAnalyticsService(logger *slog.Logger, opts Options, params tuning.ParameterStore) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}

	svc := &AnalyticsService{
		logger:    logger,
		autoGen:   opts.AutoGenerate,
		onAlert:   opts.OnAlert,
		onInsight: opts.OnInsight,
		latencies: utils.NewLatencyTracker(1024),
	}
	svc.optimizer = tuning.NewOptimizer(logger, params)

	analyzer := patterns.NewAnalyzer(logger, opts.Engine.DensityAlertThreshold)
	svc.engine = engine.New(logger, opts.Engine, analyzer, svc.handleAlert, svc.handleInsight)
	return svc
}

// Start launches the periodic analysis loop. It fails when the service is
// already running.
func (s *AnalyticsService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("analytics service already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.engine.RunAnalyzer(runCtx)
	}()

	s.logger.Info("analytics service started", slog.Duration("analysis_window", s.engine.Window()))
	return nil
}

// Stop cancels the analysis loop and waits for it to drain. Stopping an
// idle service is a no-op.
func (s *AnalyticsService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.logger.Info("analytics service stopped")
}

// Ingest records one telemetry event.
func (s *AnalyticsService) Ingest(ev models.Event) {
	s.engine.Ingest(ev)
}

// IngestRaw decodes a loosely typed event record and ingests it. Missing
// fields take their defaults; a record is never rejected.
func (s *AnalyticsService) IngestRaw(raw map[string]any) {
	s.engine.Ingest(models.DecodeEvent(raw))
}

// IngestBatch records events one by one in order.
func (s *AnalyticsService) IngestBatch(events []models.Event) {
	s.engine.IngestBatch(events)
}

// RunAnalysisNow executes one analysis pass immediately, outside the
// periodic schedule.
func (s *AnalyticsService) RunAnalysisNow() (models.SpikeSummary, models.BalanceReport, models.EfficiencyMetrics) {
	return s.engine.RunAnalysisOnce()
}

// Stats reports engine counters and buffer occupancy.
func (s *AnalyticsService) Stats() models.EngineStats {
	return s.engine.Stats()
}

// Alerts lists stored alerts matching the filter.
func (s *AnalyticsService) Alerts(filter models.AlertFilter) []models.Alert {
	return s.engine.Alerts(filter)
}

// Alert looks up a stored alert by ID.
func (s *AnalyticsService) Alert(id string) (models.Alert, bool) {
	return s.engine.Alert(id)
}

// AcknowledgeAlert marks an alert acknowledged by the given user.
func (s *AnalyticsService) AcknowledgeAlert(id, user string) bool {
	return s.engine.AcknowledgeAlert(id, user)
}

// Insights lists stored insights matching the filter.
func (s *AnalyticsService) Insights(filter models.InsightFilter) []models.AnalyticsInsight {
	return s.engine.Insights(filter)
}

// Insight looks up a stored insight by ID.
func (s *AnalyticsService) Insight(id string) (models.AnalyticsInsight, bool) {
	return s.engine.Insight(id)
}

// SpikeHistory returns recent spike summaries, oldest first.
func (s *AnalyticsService) SpikeHistory() []models.SpikeSummary {
	return s.engine.SpikeHistory()
}

// BalanceHistory returns recent balance reports, oldest first.
func (s *AnalyticsService) BalanceHistory() []models.BalanceReport {
	return s.engine.BalanceHistory()
}

// EfficiencyHistory returns recent efficiency measurements, oldest first.
func (s *AnalyticsService) EfficiencyHistory() []models.EfficiencyMetrics {
	return s.engine.EfficiencyHistory()
}

// ImpactDistribution aggregates the buffered events by type.
func (s *AnalyticsService) ImpactDistribution() []engine.TypeImpact {
	return s.engine.ImpactDistribution()
}

// HotActivities lists activities whose buffered event count exceeds the
// threshold.
func (s *AnalyticsService) HotActivities(threshold int) []engine.HotActivity {
	return s.engine.HotActivities(threshold)
}

// TemporalFlow returns the time-ordered event flow with a rolling impact
// mean, optionally narrowed to one activity.
func (s *AnalyticsService) TemporalFlow(activityID string, windowSize int) []engine.FlowPoint {
	return s.engine.TemporalFlow(activityID, windowSize)
}

// GenerateRecommendations runs the insight-to-parameter mapping on demand.
func (s *AnalyticsService) GenerateRecommendations(insight models.AnalyticsInsight) []models.TuningRecommendation {
	return s.optimizer.GenerateRecommendations(insight)
}

// Recommendations lists recommendations, optionally filtered by status.
func (s *AnalyticsService) Recommendations(status models.RecommendationStatus) []models.TuningRecommendation {
	return s.optimizer.Recommendations(status)
}

// Recommendation looks up a recommendation by ID.
func (s *AnalyticsService) Recommendation(id string) (models.TuningRecommendation, bool) {
	return s.optimizer.Recommendation(id)
}

// ApproveRecommendation moves a pending recommendation to APPROVED.
func (s *AnalyticsService) ApproveRecommendation(id string) bool {
	return s.optimizer.Approve(id)
}

// RejectRecommendation moves a pending recommendation to REJECTED.
func (s *AnalyticsService) RejectRecommendation(id, reason string) bool {
	return s.optimizer.Reject(id, reason)
}

// EscalateRecommendation flags a pending recommendation for operator review
// and raises a warning alert the first time it is stamped.
func (s *AnalyticsService) EscalateRecommendation(id string) bool {
	stamped, ok := s.optimizer.Escalate(id)
	if !ok {
		return false
	}
	if stamped {
		if rec, found := s.optimizer.Recommendation(id); found {
			s.engine.EmitAlert(models.Alert{
				Severity:    models.SeverityWarning,
				InsightType: rec.InsightType,
				Message:     fmt.Sprintf("tuning recommendation %s for %s escalated for review", rec.ID, rec.Parameter),
				Data: map[string]any{
					"recommendation_id": rec.ID,
					"parameter":         rec.Parameter,
					"confidence":        rec.Confidence,
				},
			})
		}
	}
	return true
}

// ApplyRecommendation executes an approved recommendation against the live
// parameter store, capturing current metrics as the before snapshot.
func (s *AnalyticsService) ApplyRecommendation(id string) bool {
	start := time.Now()
	ok := s.optimizer.Apply(id, s.snapshot())
	s.observeTuningLatency(time.Since(start))
	return ok
}

// EvaluateRecommendation scores an applied recommendation against current
// metrics.
func (s *AnalyticsService) EvaluateRecommendation(id string) (models.EvaluationResult, bool) {
	return s.optimizer.Evaluate(id, s.snapshot())
}

// RollbackRecommendation restores the pre-apply value of an applied
// recommendation.
func (s *AnalyticsService) RollbackRecommendation(id string) bool {
	start := time.Now()
	ok := s.optimizer.Rollback(id)
	s.observeTuningLatency(time.Since(start))
	return ok
}

// TuningHistory returns all applied-change records in apply order.
func (s *AnalyticsService) TuningHistory() []models.TuningHistoryEntry {
	return s.optimizer.History()
}

// Parameters returns the tunable parameter registry with live values.
func (s *AnalyticsService) Parameters() []models.ParameterValue {
	return s.optimizer.Parameters()
}

// Accuracy reports recommendation accuracy against the fixed target.
func (s *AnalyticsService) Accuracy() models.AccuracyStats {
	return s.optimizer.Accuracy()
}

// StartABTest opens a control/variant comparison for a recommendation.
func (s *AnalyticsService) StartABTest(recommendationID string, duration time.Duration) (models.ABTestResult, bool) {
	return s.optimizer.StartABTest(recommendationID, duration)
}

// CompleteABTest finalizes a test with caller-collected side metrics.
func (s *AnalyticsService) CompleteABTest(testID string, control, variant models.MetricsSnapshot) (models.ABTestResult, bool) {
	return s.optimizer.CompleteABTest(testID, control, variant)
}

// ABTest looks up a test by ID.
func (s *AnalyticsService) ABTest(testID string) (models.ABTestResult, bool) {
	return s.optimizer.ABTest(testID)
}

// ABTests returns all tests in start order.
func (s *AnalyticsService) ABTests() []models.ABTestResult {
	return s.optimizer.ABTests()
}

// Engine exposes the underlying analytics engine.
func (s *AnalyticsService) Engine() *engine.Engine {
	return s.engine
}

// Optimizer exposes the underlying tuning optimizer.
func (s *AnalyticsService) Optimizer() *tuning.Optimizer {
	return s.optimizer
}

// LatencyP95 returns the current p95 latency of tuning store operations.
func (s *AnalyticsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *AnalyticsService) handleAlert(alert models.Alert) {
	if s.onAlert != nil {
		s.onAlert(alert)
	}
}

func (s *AnalyticsService) handleInsight(insight models.AnalyticsInsight) {
	if s.autoGen {
		if recs := s.optimizer.GenerateRecommendations(insight); len(recs) > 0 {
			s.logger.Info("auto-generated tuning recommendations",
				slog.Int("count", len(recs)),
				slog.String("insight_id", insight.ID),
				slog.String("insight_type", string(insight.Type)),
			)
		}
	}
	if s.onInsight != nil {
		s.onInsight(insight)
	}
}

// snapshot captures the engine's latest efficiency view for lifecycle
// bookkeeping.
func (s *AnalyticsService) snapshot() models.MetricsSnapshot {
	stats := s.engine.Stats()
	snap := models.MetricsSnapshot{
		TotalEvents: stats.TotalEvents,
		CapturedAt:  time.Now().UTC(),
	}
	if history := s.engine.EfficiencyHistory(); len(history) > 0 {
		latest := history[len(history)-1]
		snap.Efficiency = latest.Efficiency
		snap.LatencyMS = latest.LatencyMS
	}
	return snap
}

func (s *AnalyticsService) observeTuningLatency(d time.Duration) {
	s.latencies.Observe(d)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("tuning apply latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}
