package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/pulsekit/pulse-tuner/internal/engine"
	"github.com/pulsekit/pulse-tuner/internal/models"
	"github.com/pulsekit/pulse-tuner/internal/services"
	"github.com/pulsekit/pulse-tuner/internal/tuning"
)

var (
	eventTypes = []string{"CLICK", "VIEW", "SCROLL", "PURCHASE"}
	activities = []string{"checkout", "browse", "search", "replay"}
)

func main() {
	var (
		eventRate = flag.Float64("rate", 50, "baseline events per second")
		duration  = flag.Duration("duration", 30*time.Second, "total run time")
		window    = flag.Duration("window", 5*time.Second, "analysis window")
		burstSize = flag.Int("burst", 40, "spike events per burst")
		seed      = flag.Int64("seed", 42, "PRNG seed")
	)
	flag.Parse()

	logger := log.New(log.Writer(), "loadgen ", log.LstdFlags|log.Lmicroseconds)
	rng := rand.New(rand.NewSource(*seed))

	svcLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := services.NewAnalyticsService(svcLogger, services.Options{
		Engine: engine.Options{
			AnalysisWindow: *window,
		},
		AutoGenerate: true,
		OnAlert: func(alert models.Alert) {
			logger.Printf("ALERT %s [%s] %s", alert.ID, alert.Severity, alert.Message)
		},
		OnInsight: func(insight models.AnalyticsInsight) {
			logger.Printf("INSIGHT %s [%s] %s", insight.ID, insight.Type, insight.Title)
		},
	}, tuning.NewMemoryStore())

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Fatalf("start: %v", err)
	}

	logger.Printf("driving %.0f events/s for %s (burst %d every %s)", *eventRate, *duration, *burstSize, *window*2)

	go func() {
		ticker := time.NewTicker(*window * 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitBurst(svc, *burstSize)
				logger.Printf("spike burst of %d emitted", *burstSize)
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(*eventRate), 1)
	for limiter.Wait(ctx) == nil {
		svc.IngestRaw(randomEvent(rng))
	}

	svc.Stop()
	summarize(logger, svc)
}

func summarize(logger *log.Logger, svc *services.AnalyticsService) {
	summary, balance, eff := svc.RunAnalysisNow()
	stats := svc.Stats()

	logger.Printf("ingested %d events (%d high impact), buffer %d/%d, spikes %d/%d",
		stats.TotalEvents, stats.HighImpactCount,
		stats.BufferSize, stats.BufferCap, stats.SpikeBufferSize, stats.SpikeBufferCap)
	logger.Printf("last window: %d spikes, density %.1f/min, max impact %.2f",
		summary.Count, summary.DensityPerMinute, summary.MaxImpact)
	logger.Printf("balance: healthy=%v dominant=%s (%.0f%%) imbalance %.2f",
		balance.IsHealthy, balance.DominantType, balance.DominantShare*100, balance.ImbalanceRatio)
	logger.Printf("efficiency: %.2f over %d events, cost %.2f, latency %.1fms",
		eff.Efficiency, eff.Total, eff.CostPerMeaningful, eff.LatencyMS)

	for _, ti := range svc.ImpactDistribution() {
		logger.Printf("  type %-10s count %5d mean impact %.2f", ti.Type, ti.Count, ti.MeanImpact)
	}
	for _, hot := range svc.HotActivities(int(stats.TotalEvents / 10)) {
		logger.Printf("  hot activity %s with %d events", hot.ActivityID, hot.Count)
	}

	alerts := svc.Alerts(models.AlertFilter{Limit: 5})
	logger.Printf("%d alerts stored (%d insights)", stats.AlertCount, stats.InsightCount)
	for _, alert := range alerts {
		logger.Printf("  alert %s [%s] %s", alert.ID, alert.Severity, alert.Message)
	}

	driveTuning(logger, svc, eff)

	acc := svc.Accuracy()
	logger.Printf("tuning accuracy %.0f%% (%d/%d, target %.0f%%)",
		acc.SuccessRate*100, acc.SuccessCount, acc.TotalCount, acc.Target*100)
}

func driveTuning(logger *log.Logger, svc *services.AnalyticsService, eff models.EfficiencyMetrics) {
	pending := svc.Recommendations(models.StatusPending)
	logger.Printf("%d pending recommendations", len(pending))
	if len(pending) == 0 {
		return
	}

	rec := pending[0]
	logger.Printf("driving %s: %s %.3f -> %.3f (%s)",
		rec.ID, rec.Parameter, rec.CurrentValue, rec.RecommendedValue, rec.Rationale)

	svc.ApproveRecommendation(rec.ID)
	if svc.ApplyRecommendation(rec.ID) {
		result, _ := svc.EvaluateRecommendation(rec.ID)
		logger.Printf("evaluation result: %s", result)
	}

	test, ok := svc.StartABTest(rec.ID, time.Minute)
	if !ok {
		return
	}
	final, _ := svc.CompleteABTest(test.TestID,
		models.MetricsSnapshot{Efficiency: eff.Efficiency},
		models.MetricsSnapshot{Efficiency: eff.Efficiency*1.2 + 0.05},
	)
	logger.Printf("ab test winner=%q confidence %.2f", final.Winner, final.ConfidenceLevel)
}

func randomEvent(rng *rand.Rand) map[string]any {
	raw := map[string]any{
		"type":   eventTypes[rng.Intn(len(eventTypes))],
		"impact": math.Round(rng.Float64()*100) / 100,
		"data": map[string]any{
			"activity_id": pickActivity(rng),
		},
	}
	if rng.Intn(4) == 0 {
		raw["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	if rng.Intn(10) == 0 {
		delete(raw, "type")
	}
	return raw
}

func pickActivity(rng *rand.Rand) string {
	if rng.Float64() < 0.4 {
		return "checkout"
	}
	return activities[rng.Intn(len(activities))]
}

func emitBurst(svc *services.AnalyticsService, size int) {
	events := make([]models.Event, 0, size)
	for i := 0; i < size; i++ {
		events = append(events, models.Event{
			Type:   "ERROR",
			Impact: 0.91 + float64(i%9)*0.01,
			Data:   map[string]any{"activity_id": "checkout"},
		})
	}
	svc.IngestBatch(events)
}
