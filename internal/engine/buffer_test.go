package engine

import (
	"testing"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

func TestEventRingFIFO(t *testing.T) {
	r := newEventRing(3)
	for i := 0; i < 5; i++ {
		r.push(models.Event{Impact: float64(i)})
	}

	if r.len() != 3 || r.capacity() != 3 {
		t.Fatalf("unexpected ring size %d/%d", r.len(), r.capacity())
	}
	snap := r.snapshot()
	if snap[0].Impact != 2 || snap[1].Impact != 3 || snap[2].Impact != 4 {
		t.Fatalf("expected oldest entries evicted, got %+v", snap)
	}
}

func TestEventRingCountSince(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newEventRing(10)
	for i := 0; i < 10; i++ {
		r.push(models.Event{Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	// cutoff is inclusive
	if got := r.countSince(base.Add(5 * time.Minute)); got != 5 {
		t.Fatalf("expected 5 events since cutoff, got %d", got)
	}
	if got := r.countSince(base.Add(time.Hour)); got != 0 {
		t.Fatalf("expected no events after the last timestamp, got %d", got)
	}

	visited := 0
	r.eachSince(base.Add(8*time.Minute), func(models.Event) { visited++ })
	if visited != 2 {
		t.Fatalf("expected 2 events visited, got %d", visited)
	}
}

func TestEventRingZeroCapacity(t *testing.T) {
	r := newEventRing(0)
	r.push(models.Event{Impact: 1})
	r.push(models.Event{Impact: 2})
	if r.capacity() != 1 || r.len() != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d/%d", r.len(), r.capacity())
	}
	if r.snapshot()[0].Impact != 2 {
		t.Fatalf("expected newest entry kept")
	}
}
