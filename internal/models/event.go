package models

import (
	"time"

	"github.com/pulsekit/pulse-tuner/internal/utils"
)

// EventTypeUnknown is assigned to events ingested without a usable type.
const EventTypeUnknown = "UNKNOWN"

// DefaultImpact is assumed when an event carries no impact score.
const DefaultImpact = 0.5

// Event is a single impact-scored telemetry record. Events are immutable
// after ingestion and are evicted oldest-first once buffers fill.
type Event struct {
	Type      string
	Impact    float64
	Timestamp time.Time
	Data      map[string]any
}

// DecodeEvent shapes a loosely typed payload into an Event. Missing or
// malformed fields fall back to defaults; the payload is never rejected.
func DecodeEvent(raw map[string]any) Event {
	ev := Event{
		Type:      EventTypeUnknown,
		Impact:    DefaultImpact,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{},
	}
	if raw == nil {
		return ev
	}
	if t, ok := raw["type"].(string); ok && t != "" {
		ev.Type = t
	}
	if impact, ok := asFloat(raw["impact"]); ok {
		ev.Impact = impact
	}
	if ts, ok := asTime(raw["timestamp"]); ok {
		ev.Timestamp = ts
	}
	switch data := raw["data"].(type) {
	case map[string]any:
		ev.Data = data
	case map[string]string:
		converted := make(map[string]any, len(data))
		for k, v := range data {
			converted[k] = v
		}
		ev.Data = converted
	}
	return ev
}

// ActivityID extracts the activity identifier from the event metadata, if any.
func (e Event) ActivityID() (string, bool) {
	v, ok := e.Data["activity_id"]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, s != ""
	}
	return "", false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := utils.ParseRFC3339(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
