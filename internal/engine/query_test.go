package engine

import (
	"math"
	"testing"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

func TestImpactDistribution(t *testing.T) {
	e := New(nil, Options{}, nil, nil, nil)
	e.Ingest(models.Event{Type: "CLICK", Impact: 0.2})
	e.Ingest(models.Event{Type: "CLICK", Impact: 0.4})
	e.Ingest(models.Event{Type: "VIEW", Impact: 0.9})

	dist := e.ImpactDistribution()
	if len(dist) != 2 {
		t.Fatalf("expected 2 types, got %d", len(dist))
	}
	if dist[0].Type != "CLICK" || dist[0].Count != 2 || math.Abs(dist[0].MeanImpact-0.3) > 1e-9 {
		t.Fatalf("unexpected first entry: %+v", dist[0])
	}
	if dist[1].Type != "VIEW" || dist[1].Count != 1 || math.Abs(dist[1].MeanImpact-0.9) > 1e-9 {
		t.Fatalf("unexpected second entry: %+v", dist[1])
	}
}

func TestImpactDistributionEmpty(t *testing.T) {
	e := New(nil, Options{}, nil, nil, nil)
	if got := e.ImpactDistribution(); len(got) != 0 {
		t.Fatalf("expected empty distribution, got %+v", got)
	}
}

func TestHotActivitiesStrictThreshold(t *testing.T) {
	e := New(nil, Options{}, nil, nil, nil)
	for i := 0; i < 3; i++ {
		e.Ingest(models.Event{Type: "CLICK", Impact: 0.5, Data: map[string]any{"activity_id": "checkout"}})
	}
	for i := 0; i < 2; i++ {
		e.Ingest(models.Event{Type: "CLICK", Impact: 0.5, Data: map[string]any{"activity_id": "browse"}})
	}
	e.Ingest(models.Event{Type: "CLICK", Impact: 0.5})

	hot := e.HotActivities(2)
	if len(hot) != 1 || hot[0].ActivityID != "checkout" || hot[0].Count != 3 {
		t.Fatalf("unexpected hot activities: %+v", hot)
	}
	if got := e.HotActivities(3); len(got) != 0 {
		t.Fatalf("expected strictly-greater comparison, got %+v", got)
	}

	all := e.HotActivities(0)
	if len(all) != 2 || all[0].ActivityID != "checkout" || all[1].ActivityID != "browse" {
		t.Fatalf("unexpected ordering: %+v", all)
	}
}

func TestTemporalFlowRollingMean(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := New(nil, Options{}, nil, nil, nil)
	e.Ingest(models.Event{Type: "B", Impact: 0.4, Timestamp: base.Add(2 * time.Second)})
	e.Ingest(models.Event{Type: "A", Impact: 0.2, Timestamp: base})
	e.Ingest(models.Event{Type: "C", Impact: 0.9, Timestamp: base.Add(4 * time.Second)})

	flow := e.TemporalFlow("", 2)
	if len(flow) != 3 {
		t.Fatalf("expected 3 points, got %d", len(flow))
	}
	if !flow[0].Timestamp.Equal(base) || flow[0].Type != "A" {
		t.Fatalf("expected chronological order, got %+v", flow[0])
	}
	if math.Abs(flow[0].RollingMean-0.2) > 1e-9 {
		t.Fatalf("expected first mean 0.2, got %v", flow[0].RollingMean)
	}
	if math.Abs(flow[1].RollingMean-0.3) > 1e-9 {
		t.Fatalf("expected second mean 0.3, got %v", flow[1].RollingMean)
	}
	if math.Abs(flow[2].RollingMean-0.65) > 1e-9 {
		t.Fatalf("expected third mean 0.65, got %v", flow[2].RollingMean)
	}
}

func TestTemporalFlowActivityFilter(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := New(nil, Options{}, nil, nil, nil)
	e.Ingest(models.Event{Type: "A", Impact: 0.2, Timestamp: base, Data: map[string]any{"activity_id": "checkout"}})
	e.Ingest(models.Event{Type: "A", Impact: 0.8, Timestamp: base.Add(time.Second), Data: map[string]any{"activity_id": "browse"}})
	e.Ingest(models.Event{Type: "A", Impact: 0.6, Timestamp: base.Add(2 * time.Second), Data: map[string]any{"activity_id": "checkout"}})

	flow := e.TemporalFlow("checkout", 2)
	if len(flow) != 2 {
		t.Fatalf("expected 2 checkout points, got %d", len(flow))
	}
	// mean runs over the filtered sequence only
	if math.Abs(flow[1].RollingMean-0.4) > 1e-9 {
		t.Fatalf("expected mean over filtered points 0.4, got %v", flow[1].RollingMean)
	}
}

func TestTemporalFlowTruncates(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := New(nil, Options{}, nil, nil, nil)
	for i := 0; i < 150; i++ {
		e.Ingest(models.Event{Type: "T", Impact: 0.5, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	flow := e.TemporalFlow("", 10)
	if len(flow) != maxFlowPoints {
		t.Fatalf("expected %d points, got %d", maxFlowPoints, len(flow))
	}
	if !flow[0].Timestamp.Equal(base.Add(50 * time.Second)) {
		t.Fatalf("expected the trailing points kept, first at %v", flow[0].Timestamp)
	}
}

func TestTemporalFlowWindowClamp(t *testing.T) {
	e := New(nil, Options{}, nil, nil, nil)
	e.Ingest(models.Event{Type: "A", Impact: 0.25})
	e.Ingest(models.Event{Type: "A", Impact: 0.75})

	for _, p := range e.TemporalFlow("", 0) {
		if p.RollingMean != p.Impact {
			t.Fatalf("expected window clamped to 1, got mean %v for impact %v", p.RollingMean, p.Impact)
		}
	}
}
