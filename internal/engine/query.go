package engine

import (
	"sort"
	"time"
)

// maxFlowPoints bounds the temporal flow result.
const maxFlowPoints = 100

// TypeImpact aggregates impact for one event type across the full buffer.
type TypeImpact struct {
	Type       string
	Count      int
	MeanImpact float64
}

// HotActivity is an activity whose event count exceeded the query threshold.
type HotActivity struct {
	ActivityID string
	Count      int
}

// FlowPoint is one step of a temporal flow annotated with a trailing mean.
type FlowPoint struct {
	Timestamp   time.Time
	Type        string
	ActivityID  string
	Impact      float64
	RollingMean float64
}

// ImpactDistribution groups mean impact and event count by type over the
// full buffer, busiest types first.
func (e *Engine) ImpactDistribution() []TypeImpact {
	e.mu.RLock()
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, ev := range e.events.snapshot() {
		sums[ev.Type] += ev.Impact
		counts[ev.Type]++
	}
	e.mu.RUnlock()

	out := make([]TypeImpact, 0, len(counts))
	for typ, count := range counts {
		out = append(out, TypeImpact{
			Type:       typ,
			Count:      count,
			MeanImpact: sums[typ] / float64(count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// HotActivities returns activities whose buffered event count strictly
// exceeds threshold, busiest first.
func (e *Engine) HotActivities(threshold int) []HotActivity {
	e.mu.RLock()
	counts := make(map[string]int)
	for _, ev := range e.events.snapshot() {
		if id, ok := ev.ActivityID(); ok {
			counts[id]++
		}
	}
	e.mu.RUnlock()

	out := make([]HotActivity, 0, len(counts))
	for id, count := range counts {
		if count > threshold {
			out = append(out, HotActivity{ActivityID: id, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActivityID < out[j].ActivityID
	})
	return out
}

// TemporalFlow returns the buffered events in timestamp order, optionally
// filtered by activity, each annotated with the trailing mean impact over
// the last windowSize points. At most the final maxFlowPoints entries are
// returned.
func (e *Engine) TemporalFlow(activityID string, windowSize int) []FlowPoint {
	if windowSize <= 0 {
		windowSize = 1
	}

	e.mu.RLock()
	events := e.events.snapshot()
	e.mu.RUnlock()

	points := make([]FlowPoint, 0, len(events))
	for _, ev := range events {
		id, _ := ev.ActivityID()
		if activityID != "" && id != activityID {
			continue
		}
		points = append(points, FlowPoint{
			Timestamp:  ev.Timestamp,
			Type:       ev.Type,
			ActivityID: id,
			Impact:     ev.Impact,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	windowSum := 0.0
	for i := range points {
		windowSum += points[i].Impact
		if i >= windowSize {
			windowSum -= points[i-windowSize].Impact
		}
		span := windowSize
		if i+1 < span {
			span = i + 1
		}
		points[i].RollingMean = windowSum / float64(span)
	}

	if len(points) > maxFlowPoints {
		points = points[len(points)-maxFlowPoints:]
	}
	return points
}
