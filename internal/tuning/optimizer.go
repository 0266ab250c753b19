package tuning

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/models"
)

const (
	// Recommendations scoring below this confidence are never created.
	confidenceFloor = 0.5

	// Weights blending severity-based confidence with historical accuracy
	// once more than historyBlendMin evaluations have accumulated.
	confidenceBaseWeight    = 0.6
	confidenceHistoryWeight = 0.4
	historyBlendMin         = 10

	// Moves smaller than this are dropped as noise.
	minRecommendationDelta = 0.001

	// Efficiency movement factors classifying an evaluation.
	evaluatePositiveFactor = 1.1
	evaluateNegativeFactor = 0.9

	// accuracyTarget is the success-rate goal reported by Accuracy.
	accuracyTarget = 0.8

	appliedBy = "optimizer"
)

// Optimizer maps insights to bounded parameter recommendations and drives
// each through its lifecycle. All state is in-memory; the injected
// ParameterStore is the only side-effect surface.
type Optimizer struct {
	logger *slog.Logger
	store  ParameterStore

	mu            sync.Mutex
	nextRecID     int64
	nextHistoryID int64
	recs          []*models.TuningRecommendation
	recByID       map[string]*models.TuningRecommendation
	history       []*models.TuningHistoryEntry
	historyByRec  map[string]*models.TuningHistoryEntry
	abTests       map[string]*models.ABTestResult
	abOrder       []string
	successCount  int64
	totalCount    int64
}

// NewOptimizer constructs an Optimizer. A nil store falls back to an
// in-memory store holding registry defaults.
func NewOptimizer(logger *slog.Logger, store ParameterStore) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Optimizer{
		logger:       logger,
		store:        store,
		recByID:      make(map[string]*models.TuningRecommendation),
		historyByRec: make(map[string]*models.TuningHistoryEntry),
		abTests:      make(map[string]*models.ABTestResult),
	}
}

// GenerateRecommendations maps an insight through the adjustment table into
// pending recommendations. Adjustments already at their bound are skipped,
// as is the whole insight when confidence lands below the floor. Given
// unchanged optimizer state the same insight yields identical values.
func (o *Optimizer) GenerateRecommendations(insight models.AnalyticsInsight) []models.TuningRecommendation {
	adjustments, ok := insightAdjustments[insight.Type]
	if !ok {
		o.logger.Debug("no parameter mapping for insight type", slog.String("type", string(insight.Type)))
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	confidence := o.confidenceLocked(insight.Severity)
	if confidence < confidenceFloor {
		o.logger.Debug("confidence below floor, skipping generation",
			slog.String("insight_id", insight.ID),
			slog.Float64("confidence", confidence),
		)
		return nil
	}

	now := time.Now().UTC()
	created := make([]models.TuningRecommendation, 0, len(adjustments))
	for _, adj := range adjustments {
		spec, known := parameterSpecs[adj.parameter]
		if !known {
			continue
		}
		current := o.store.CurrentValue(adj.parameter)
		proposed := current + adj.magnitude
		if adj.direction == DirectionDecrease {
			proposed = current - adj.magnitude
		}
		recommended := clamp(proposed, spec.Min, spec.Max)
		if math.Abs(recommended-current) < minRecommendationDelta {
			o.logger.Debug("skipping no-op adjustment",
				slog.String("parameter", adj.parameter),
				slog.Float64("current", current),
			)
			continue
		}

		rationale, improvement := rationaleFor(insight.Type, adj.parameter)
		o.nextRecID++
		rec := &models.TuningRecommendation{
			ID:                  fmt.Sprintf("REC-%06d", o.nextRecID),
			InsightID:           insight.ID,
			InsightType:         insight.Type,
			Parameter:           adj.parameter,
			CurrentValue:        current,
			RecommendedValue:    recommended,
			Confidence:          confidence,
			Rationale:           rationale,
			ExpectedImprovement: improvement,
			Status:              models.StatusPending,
			CreatedAt:           now,
		}
		o.recs = append(o.recs, rec)
		o.recByID[rec.ID] = rec
		metrics.ObserveRecommendation(string(models.StatusPending))
		o.logger.Info("tuning recommendation created",
			slog.String("id", rec.ID),
			slog.String("parameter", rec.Parameter),
			slog.Float64("current", rec.CurrentValue),
			slog.Float64("recommended", rec.RecommendedValue),
			slog.Float64("confidence", rec.Confidence),
		)
		created = append(created, cloneRecommendation(rec))
	}
	return created
}

// Approve moves a pending recommendation to APPROVED. Repeat approvals are
// no-ops that still report success.
func (o *Optimizer) Approve(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		o.logger.Warn("approve for unknown recommendation", slog.String("id", id))
		return false
	}
	switch rec.Status {
	case models.StatusApproved:
		o.logger.Debug("recommendation already approved", slog.String("id", id))
		return true
	case models.StatusPending:
	default:
		o.logger.Warn("approve rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return false
	}

	rec.Status = models.StatusApproved
	metrics.ObserveRecommendation(string(models.StatusApproved))
	o.logger.Info("recommendation approved", slog.String("id", id), slog.String("parameter", rec.Parameter))
	return true
}

// Reject moves a pending recommendation to REJECTED. The reason is logged
// only; it is not stored on the recommendation.
func (o *Optimizer) Reject(id, reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		o.logger.Warn("reject for unknown recommendation", slog.String("id", id))
		return false
	}
	switch rec.Status {
	case models.StatusRejected:
		o.logger.Debug("recommendation already rejected", slog.String("id", id))
		return true
	case models.StatusPending:
	default:
		o.logger.Warn("reject rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return false
	}

	rec.Status = models.StatusRejected
	metrics.ObserveRecommendation(string(models.StatusRejected))
	o.logger.Info("recommendation rejected",
		slog.String("id", id),
		slog.String("parameter", rec.Parameter),
		slog.String("reason", reason),
	)
	return true
}

// Escalate stamps a pending recommendation for operator attention without
// changing its status. stamped reports whether this call performed the
// stamp; ok whether the recommendation was eligible at all.
func (o *Optimizer) Escalate(id string) (stamped, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, found := o.recByID[id]
	if !found {
		o.logger.Warn("escalate for unknown recommendation", slog.String("id", id))
		return false, false
	}
	if rec.Status != models.StatusPending {
		o.logger.Warn("escalate rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return false, false
	}
	if !rec.EscalatedAt.IsZero() {
		o.logger.Debug("recommendation already escalated", slog.String("id", id))
		return false, true
	}

	rec.EscalatedAt = time.Now().UTC()
	o.logger.Info("recommendation escalated", slog.String("id", id), slog.String("parameter", rec.Parameter))
	return true, true
}

// Apply executes an approved recommendation through the parameter store.
// current becomes the before snapshot. On setter success the status moves
// to APPLIED and exactly one history entry is recorded; on setter failure
// the status moves to FAILED and no history entry is created.
func (o *Optimizer) Apply(id string, current models.MetricsSnapshot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		o.logger.Warn("apply for unknown recommendation", slog.String("id", id))
		return false
	}
	if rec.Status != models.StatusApproved {
		o.logger.Warn("apply rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return false
	}

	if current.CapturedAt.IsZero() {
		current.CapturedAt = time.Now().UTC()
	}
	before := current
	rec.BeforeMetrics = &before

	if !o.store.ApplyValue(rec.Parameter, rec.RecommendedValue) {
		rec.Status = models.StatusFailed
		metrics.ObserveRecommendation(string(models.StatusFailed))
		o.logger.Warn("parameter apply failed",
			slog.String("id", id),
			slog.String("parameter", rec.Parameter),
			slog.Float64("value", rec.RecommendedValue),
		)
		return false
	}

	now := time.Now().UTC()
	rec.Status = models.StatusApplied
	rec.AppliedAt = now

	o.nextHistoryID++
	entry := &models.TuningHistoryEntry{
		ID:               fmt.Sprintf("TH-%06d", o.nextHistoryID),
		RecommendationID: rec.ID,
		Parameter:        rec.Parameter,
		OldValue:         rec.CurrentValue,
		NewValue:         rec.RecommendedValue,
		AppliedBy:        appliedBy,
		AppliedAt:        now,
		Result:           models.ResultPending,
		BeforeMetrics:    rec.BeforeMetrics,
	}
	o.history = append(o.history, entry)
	o.historyByRec[rec.ID] = entry

	metrics.ObserveRecommendation(string(models.StatusApplied))
	o.logger.Info("recommendation applied",
		slog.String("id", id),
		slog.String("parameter", rec.Parameter),
		slog.Float64("old", rec.CurrentValue),
		slog.Float64("new", rec.RecommendedValue),
	)
	return true
}

// Evaluate classifies an applied recommendation against the supplied after
// metrics. It may be called repeatedly; each call overwrites the after
// snapshot and feeds the accuracy counters again.
func (o *Optimizer) Evaluate(id string, after models.MetricsSnapshot) (models.EvaluationResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		o.logger.Warn("evaluate for unknown recommendation", slog.String("id", id))
		return "", false
	}
	if rec.Status != models.StatusApplied {
		o.logger.Debug("evaluate rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return "", false
	}

	if after.CapturedAt.IsZero() {
		after.CapturedAt = time.Now().UTC()
	}
	snapshot := after
	rec.AfterMetrics = &snapshot

	result := models.ResultNeutral
	if rec.BeforeMetrics != nil {
		switch {
		case after.Efficiency > rec.BeforeMetrics.Efficiency*evaluatePositiveFactor:
			result = models.ResultPositive
		case after.Efficiency < rec.BeforeMetrics.Efficiency*evaluateNegativeFactor:
			result = models.ResultNegative
		}
	}

	if entry, found := o.historyByRec[rec.ID]; found {
		entry.AfterMetrics = &snapshot
		entry.Result = result
	}

	o.totalCount++
	if result == models.ResultPositive {
		o.successCount++
	}

	o.logger.Info("recommendation evaluated",
		slog.String("id", id),
		slog.String("result", string(result)),
		slog.Float64("after_efficiency", after.Efficiency),
	)
	return result, true
}

// Rollback re-applies the original value of an applied recommendation. On
// setter success the status moves to ROLLED_BACK and a note lands on the
// matching history entry.
func (o *Optimizer) Rollback(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		o.logger.Warn("rollback for unknown recommendation", slog.String("id", id))
		return false
	}
	if rec.Status != models.StatusApplied {
		o.logger.Warn("rollback rejected by status",
			slog.String("id", id), slog.String("status", string(rec.Status)))
		return false
	}

	if !o.store.ApplyValue(rec.Parameter, rec.CurrentValue) {
		o.logger.Warn("parameter rollback failed",
			slog.String("id", id),
			slog.String("parameter", rec.Parameter),
			slog.Float64("value", rec.CurrentValue),
		)
		return false
	}

	now := time.Now().UTC()
	rec.Status = models.StatusRolledBack
	if entry, found := o.historyByRec[rec.ID]; found {
		entry.Notes = append(entry.Notes, fmt.Sprintf("rolled back to %g at %s", rec.CurrentValue, now.Format(time.RFC3339)))
	}
	metrics.ObserveRecommendation(string(models.StatusRolledBack))
	o.logger.Info("recommendation rolled back",
		slog.String("id", id),
		slog.String("parameter", rec.Parameter),
		slog.Float64("restored", rec.CurrentValue),
	)
	return true
}

// Accuracy reports the historical share of positive evaluations against the
// fixed target.
func (o *Optimizer) Accuracy() models.AccuracyStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := models.AccuracyStats{
		SuccessCount: o.successCount,
		TotalCount:   o.totalCount,
		Target:       accuracyTarget,
	}
	if o.totalCount > 0 {
		stats.SuccessRate = float64(o.successCount) / float64(o.totalCount)
	}
	stats.MeetsTarget = stats.SuccessRate >= accuracyTarget
	return stats
}

// Recommendation returns a copy of the recommendation with the given ID.
func (o *Optimizer) Recommendation(id string) (models.TuningRecommendation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.recByID[id]
	if !ok {
		return models.TuningRecommendation{}, false
	}
	return cloneRecommendation(rec), true
}

// Recommendations returns copies of all recommendations in creation order,
// optionally filtered by status.
func (o *Optimizer) Recommendations(status models.RecommendationStatus) []models.TuningRecommendation {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.TuningRecommendation, 0, len(o.recs))
	for _, rec := range o.recs {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, cloneRecommendation(rec))
	}
	return out
}

// History returns copies of all tuning history entries in apply order.
func (o *Optimizer) History() []models.TuningHistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.TuningHistoryEntry, 0, len(o.history))
	for _, entry := range o.history {
		out = append(out, cloneHistoryEntry(entry))
	}
	return out
}

// Parameters returns the registry snapshot with live current values.
func (o *Optimizer) Parameters() []models.ParameterValue {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := ParameterNames()
	out := make([]models.ParameterValue, 0, len(names))
	for _, name := range names {
		spec := parameterSpecs[name]
		out = append(out, models.ParameterValue{
			Name:         name,
			CurrentValue: o.store.CurrentValue(name),
			DefaultValue: spec.Default,
			Min:          spec.Min,
			Max:          spec.Max,
		})
	}
	return out
}

func (o *Optimizer) confidenceLocked(severity models.Severity) float64 {
	base := baseConfidence(severity)
	if o.totalCount > historyBlendMin {
		rate := float64(o.successCount) / float64(o.totalCount)
		return base*confidenceBaseWeight + rate*confidenceHistoryWeight
	}
	return base
}

func baseConfidence(severity models.Severity) float64 {
	switch severity {
	case models.SeverityCritical:
		return 0.85
	case models.SeverityWarning:
		return 0.70
	case models.SeverityInfo:
		return 0.55
	default:
		return 0.60
	}
}

func cloneRecommendation(rec *models.TuningRecommendation) models.TuningRecommendation {
	out := *rec
	if rec.BeforeMetrics != nil {
		before := *rec.BeforeMetrics
		out.BeforeMetrics = &before
	}
	if rec.AfterMetrics != nil {
		after := *rec.AfterMetrics
		out.AfterMetrics = &after
	}
	return out
}

func cloneHistoryEntry(entry *models.TuningHistoryEntry) models.TuningHistoryEntry {
	out := *entry
	if entry.BeforeMetrics != nil {
		before := *entry.BeforeMetrics
		out.BeforeMetrics = &before
	}
	if entry.AfterMetrics != nil {
		after := *entry.AfterMetrics
		out.AfterMetrics = &after
	}
	out.Notes = append([]string(nil), entry.Notes...)
	return out
}
