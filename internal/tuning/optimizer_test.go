package tuning

import (
	"math"
	"testing"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

type fakeParamStore struct {
	values  map[string]float64
	fail    bool
	applies int
}

func newFakeParamStore() *fakeParamStore {
	return &fakeParamStore{values: map[string]float64{}}
}

func (f *fakeParamStore) CurrentValue(parameter string) float64 {
	if v, ok := f.values[parameter]; ok {
		return v
	}
	spec, _ := SpecFor(parameter)
	return spec.Default
}

func (f *fakeParamStore) ApplyValue(parameter string, value float64) bool {
	f.applies++
	if f.fail {
		return false
	}
	f.values[parameter] = value
	return true
}

func spikeInsight(severity models.Severity) models.AnalyticsInsight {
	return models.AnalyticsInsight{ID: "INS-000001", Type: models.InsightSpikeDetected, Severity: severity}
}

func TestGenerateFromSpikeInsight(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	recs := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}

	first := recs[0]
	if first.ID != "REC-000001" {
		t.Fatalf("unexpected ID %q", first.ID)
	}
	if first.Parameter != "attack_time" {
		t.Fatalf("expected attack_time first, got %s", first.Parameter)
	}
	if math.Abs(first.CurrentValue-0.1) > 1e-9 {
		t.Fatalf("expected current 0.1, got %v", first.CurrentValue)
	}
	// 0.1 - 0.1 clamps to the 0.01 floor
	if math.Abs(first.RecommendedValue-0.01) > 1e-9 {
		t.Fatalf("expected recommended 0.01, got %v", first.RecommendedValue)
	}
	if first.Confidence != 0.85 {
		t.Fatalf("expected CRITICAL confidence 0.85, got %v", first.Confidence)
	}
	if first.Status != models.StatusPending || first.CreatedAt.IsZero() {
		t.Fatalf("unexpected lifecycle state: %+v", first)
	}
	if first.InsightID != "INS-000001" || first.InsightType != models.InsightSpikeDetected {
		t.Fatalf("insight linkage missing: %+v", first)
	}
	if first.Rationale == "" || first.ExpectedImprovement == "" {
		t.Fatalf("expected rationale text, got %+v", first)
	}

	second := recs[1]
	if second.Parameter != "impact_threshold" || math.Abs(second.RecommendedValue-0.55) > 1e-9 {
		t.Fatalf("unexpected second recommendation: %+v", second)
	}
}

func TestGenerateSkipsAdjustmentAtBound(t *testing.T) {
	store := newFakeParamStore()
	store.values["attack_time"] = 0.01
	o := NewOptimizer(nil, store)

	recs := o.GenerateRecommendations(spikeInsight(models.SeverityWarning))
	if len(recs) != 1 || recs[0].Parameter != "impact_threshold" {
		t.Fatalf("expected only the threshold move, got %+v", recs)
	}
	if recs[0].Confidence != 0.70 {
		t.Fatalf("expected WARNING confidence 0.70, got %v", recs[0].Confidence)
	}
}

func TestGenerateUnknownInsightType(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	recs := o.GenerateRecommendations(models.AnalyticsInsight{Type: "WEIRD", Severity: models.SeverityCritical})
	if len(recs) != 0 {
		t.Fatalf("expected no recommendations for unmapped type, got %d", len(recs))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	a := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))
	b := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))

	if a[0].ID == b[0].ID {
		t.Fatalf("expected fresh IDs per generation")
	}
	if a[0].RecommendedValue != b[0].RecommendedValue || a[0].Confidence != b[0].Confidence || a[0].Rationale != b[0].Rationale {
		t.Fatalf("expected identical values for unchanged state: %+v vs %+v", a[0], b[0])
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := newFakeParamStore()
	o := NewOptimizer(nil, store)
	recs := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))
	rec := recs[0]

	if o.Apply(rec.ID, models.MetricsSnapshot{}) {
		t.Fatalf("expected apply to fail while pending")
	}
	if !o.Approve(rec.ID) {
		t.Fatalf("expected approve to succeed")
	}
	if !o.Approve(rec.ID) {
		t.Fatalf("expected repeat approve to stay successful")
	}
	if !o.Apply(rec.ID, models.MetricsSnapshot{Efficiency: 0.4, TotalEvents: 100}) {
		t.Fatalf("expected apply to succeed")
	}
	if math.Abs(store.values["attack_time"]-0.01) > 1e-9 {
		t.Fatalf("expected store updated to 0.01, got %v", store.values["attack_time"])
	}

	got, _ := o.Recommendation(rec.ID)
	if got.Status != models.StatusApplied || got.AppliedAt.IsZero() {
		t.Fatalf("unexpected state after apply: %+v", got)
	}
	if got.BeforeMetrics == nil || got.BeforeMetrics.Efficiency != 0.4 {
		t.Fatalf("before snapshot missing: %+v", got.BeforeMetrics)
	}

	history := o.History()
	if len(history) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ID != "TH-000001" || entry.RecommendationID != rec.ID {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if entry.Result != models.ResultPending {
		t.Fatalf("expected pending result before evaluation, got %s", entry.Result)
	}
	if entry.AppliedBy != "optimizer" {
		t.Fatalf("unexpected applier %q", entry.AppliedBy)
	}
	if math.Abs(entry.OldValue-0.1) > 1e-9 || math.Abs(entry.NewValue-0.01) > 1e-9 {
		t.Fatalf("unexpected values in history: %+v", entry)
	}

	result, ok := o.Evaluate(rec.ID, models.MetricsSnapshot{Efficiency: 0.5})
	if !ok || result != models.ResultPositive {
		t.Fatalf("expected positive evaluation, got %s (ok=%v)", result, ok)
	}
	history = o.History()
	if history[0].Result != models.ResultPositive || history[0].AfterMetrics == nil {
		t.Fatalf("history not updated by evaluation: %+v", history[0])
	}

	if !o.Rollback(rec.ID) {
		t.Fatalf("expected rollback to succeed")
	}
	if math.Abs(store.values["attack_time"]-0.1) > 1e-9 {
		t.Fatalf("expected original value restored, got %v", store.values["attack_time"])
	}
	got, _ = o.Recommendation(rec.ID)
	if got.Status != models.StatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s", got.Status)
	}
	history = o.History()
	if len(history) != 1 || len(history[0].Notes) != 1 {
		t.Fatalf("expected a rollback note on the single entry, got %+v", history)
	}
	if o.Rollback(rec.ID) {
		t.Fatalf("expected repeat rollback to fail")
	}
}

func TestApplyFailureNoHistory(t *testing.T) {
	store := newFakeParamStore()
	store.fail = true
	o := NewOptimizer(nil, store)
	rec := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))[0]
	o.Approve(rec.ID)

	if o.Apply(rec.ID, models.MetricsSnapshot{Efficiency: 0.3}) {
		t.Fatalf("expected apply to report failure")
	}
	got, _ := o.Recommendation(rec.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.BeforeMetrics == nil || got.BeforeMetrics.Efficiency != 0.3 {
		t.Fatalf("expected before snapshot kept on failure, got %+v", got.BeforeMetrics)
	}
	if len(o.History()) != 0 {
		t.Fatalf("expected no history entry for a failed apply")
	}
	if _, ok := o.Evaluate(rec.ID, models.MetricsSnapshot{}); ok {
		t.Fatalf("expected evaluation of a failed recommendation to be refused")
	}
}

func TestEvaluateClassification(t *testing.T) {
	store := newFakeParamStore()
	o := NewOptimizer(nil, store)
	rec := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))[0]
	o.Approve(rec.ID)
	o.Apply(rec.ID, models.MetricsSnapshot{Efficiency: 0.5})

	cases := []struct {
		eff  float64
		want models.EvaluationResult
	}{
		{0.52, models.ResultNeutral},
		{0.44, models.ResultNegative},
		{0.56, models.ResultPositive},
	}
	for _, tc := range cases {
		result, ok := o.Evaluate(rec.ID, models.MetricsSnapshot{Efficiency: tc.eff})
		if !ok || result != tc.want {
			t.Fatalf("efficiency %v: expected %s, got %s (ok=%v)", tc.eff, tc.want, result, ok)
		}
	}

	acc := o.Accuracy()
	if acc.TotalCount != 3 || acc.SuccessCount != 1 {
		t.Fatalf("unexpected accuracy counters: %+v", acc)
	}
	if acc.MeetsTarget {
		t.Fatalf("expected 1/3 to miss the 0.8 target")
	}
	if math.Abs(acc.SuccessRate-1.0/3.0) > 1e-9 {
		t.Fatalf("unexpected success rate %v", acc.SuccessRate)
	}

	got, _ := o.Recommendation(rec.ID)
	if got.AfterMetrics == nil || got.AfterMetrics.Efficiency != 0.56 {
		t.Fatalf("expected latest evaluation to win, got %+v", got.AfterMetrics)
	}
}

func TestConfidenceBlendsWithAccuracy(t *testing.T) {
	store := newFakeParamStore()
	o := NewOptimizer(nil, store)
	rec := o.GenerateRecommendations(models.AnalyticsInsight{Type: models.InsightEfficiencyDrop, Severity: models.SeverityWarning})[0]
	o.Approve(rec.ID)
	o.Apply(rec.ID, models.MetricsSnapshot{Efficiency: 0.4})

	for i := 0; i < 12; i++ {
		if result, ok := o.Evaluate(rec.ID, models.MetricsSnapshot{Efficiency: 0.5}); !ok || result != models.ResultPositive {
			t.Fatalf("evaluation %d: got %s (ok=%v)", i, result, ok)
		}
	}
	acc := o.Accuracy()
	if acc.TotalCount != 12 || acc.SuccessCount != 12 || !acc.MeetsTarget {
		t.Fatalf("unexpected accuracy after reps: %+v", acc)
	}

	recs := o.GenerateRecommendations(models.AnalyticsInsight{Type: models.InsightAnomaly, Severity: models.SeverityCritical})
	if len(recs) != 1 {
		t.Fatalf("expected 1 anomaly recommendation, got %d", len(recs))
	}
	want := 0.6*0.85 + 0.4*1.0
	if math.Abs(recs[0].Confidence-want) > 1e-9 {
		t.Fatalf("expected blended confidence %v, got %v", want, recs[0].Confidence)
	}
}

func TestConfidenceFloorSkipsGeneration(t *testing.T) {
	store := newFakeParamStore()
	o := NewOptimizer(nil, store)
	rec := o.GenerateRecommendations(models.AnalyticsInsight{Type: models.InsightEfficiencyDrop, Severity: models.SeverityWarning})[0]
	o.Approve(rec.ID)
	o.Apply(rec.ID, models.MetricsSnapshot{Efficiency: 0.5})
	for i := 0; i < 11; i++ {
		o.Evaluate(rec.ID, models.MetricsSnapshot{Efficiency: 0.2})
	}

	// 0.6*0.70 + 0.4*0 lands below the 0.5 floor
	if recs := o.GenerateRecommendations(spikeInsight(models.SeverityWarning)); len(recs) != 0 {
		t.Fatalf("expected generation skipped below the confidence floor, got %d", len(recs))
	}
	// a CRITICAL insight still clears it
	if recs := o.GenerateRecommendations(models.AnalyticsInsight{Type: models.InsightAnomaly, Severity: models.SeverityCritical}); len(recs) != 1 {
		t.Fatalf("expected CRITICAL generation to clear the floor, got %d", len(recs))
	}
}

func TestRejectLifecycle(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	rec := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))[0]

	if !o.Reject(rec.ID, "manual review") {
		t.Fatalf("expected reject to succeed")
	}
	got, _ := o.Recommendation(rec.ID)
	if got.Status != models.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", got.Status)
	}
	if o.Approve(rec.ID) {
		t.Fatalf("expected approve after reject to fail")
	}
	if !o.Reject(rec.ID, "again") {
		t.Fatalf("expected repeat reject to stay successful")
	}
	if o.Reject("REC-999999", "missing") {
		t.Fatalf("expected reject of unknown recommendation to fail")
	}
}

func TestEscalateStampsOnce(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	rec := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))[0]

	stamped, ok := o.Escalate(rec.ID)
	if !stamped || !ok {
		t.Fatalf("expected first escalate to stamp, got stamped=%v ok=%v", stamped, ok)
	}
	got, _ := o.Recommendation(rec.ID)
	if got.EscalatedAt.IsZero() || got.Status != models.StatusPending {
		t.Fatalf("escalation must stamp without changing status: %+v", got)
	}

	stamped, ok = o.Escalate(rec.ID)
	if stamped || !ok {
		t.Fatalf("expected repeat escalate to be a stamped no-op, got stamped=%v ok=%v", stamped, ok)
	}

	o.Approve(rec.ID)
	stamped, ok = o.Escalate(rec.ID)
	if stamped || ok {
		t.Fatalf("expected escalate of approved recommendation to be refused")
	}
	if s, k := o.Escalate("REC-999999"); s || k {
		t.Fatalf("expected escalate of unknown recommendation to fail")
	}
}

func TestRecommendationsFilter(t *testing.T) {
	o := NewOptimizer(nil, newFakeParamStore())
	recs := o.GenerateRecommendations(spikeInsight(models.SeverityCritical))
	o.Approve(recs[0].ID)

	if got := o.Recommendations(models.StatusPending); len(got) != 1 || got[0].ID != recs[1].ID {
		t.Fatalf("unexpected pending filter result: %+v", got)
	}
	if got := o.Recommendations(""); len(got) != 2 {
		t.Fatalf("expected all recommendations, got %d", len(got))
	}
	if _, ok := o.Recommendation("REC-999999"); ok {
		t.Fatalf("expected unknown lookup to fail")
	}
}

func TestParametersSnapshot(t *testing.T) {
	store := newFakeParamStore()
	o := NewOptimizer(nil, store)

	params := o.Parameters()
	if len(params) != 9 {
		t.Fatalf("expected 9 registered parameters, got %d", len(params))
	}
	if params[0].Name != "attack_time" {
		t.Fatalf("expected sorted names, first was %s", params[0].Name)
	}
	if params[0].DefaultValue != 0.1 || params[0].Min != 0.01 || params[0].Max != 1.0 {
		t.Fatalf("unexpected attack_time spec: %+v", params[0])
	}

	store.values["batch_size"] = 140
	params = o.Parameters()
	if params[1].Name != "batch_size" || params[1].CurrentValue != 140 || params[1].DefaultValue != 100 {
		t.Fatalf("expected live value surfaced: %+v", params[1])
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if v := s.CurrentValue("attack_time"); math.Abs(v-0.1) > 1e-9 {
		t.Fatalf("expected default 0.1, got %v", v)
	}
	if !s.ApplyValue("attack_time", 0.25) {
		t.Fatalf("expected apply of known parameter to succeed")
	}
	if v := s.CurrentValue("attack_time"); v != 0.25 {
		t.Fatalf("expected stored value, got %v", v)
	}
	if s.ApplyValue("nope", 1) {
		t.Fatalf("expected apply of unknown parameter to fail")
	}
	if v := s.CurrentValue("nope"); v != 0 {
		t.Fatalf("expected zero for unknown parameter, got %v", v)
	}
}
