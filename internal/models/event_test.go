package models

import (
	"testing"
	"time"
)

func TestDecodeEventDefaults(t *testing.T) {
	before := time.Now().UTC()
	ev := DecodeEvent(map[string]any{})
	after := time.Now().UTC()

	if ev.Type != EventTypeUnknown {
		t.Fatalf("expected type %q, got %q", EventTypeUnknown, ev.Type)
	}
	if ev.Impact != DefaultImpact {
		t.Fatalf("expected impact %v, got %v", DefaultImpact, ev.Impact)
	}
	if ev.Timestamp.Before(before) || ev.Timestamp.After(after) {
		t.Fatalf("expected timestamp near now, got %v", ev.Timestamp)
	}
	if ev.Data == nil || len(ev.Data) != 0 {
		t.Fatalf("expected empty data map, got %v", ev.Data)
	}
}

func TestDecodeEventNilPayload(t *testing.T) {
	ev := DecodeEvent(nil)
	if ev.Type != EventTypeUnknown || ev.Impact != DefaultImpact {
		t.Fatalf("expected defaults for nil payload, got %+v", ev)
	}
	if ev.Data == nil {
		t.Fatalf("expected non-nil data map")
	}
}

func TestDecodeEventFields(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ev := DecodeEvent(map[string]any{
		"type":      "CLICK",
		"impact":    0.92,
		"timestamp": ts,
		"data":      map[string]any{"activity_id": "checkout"},
	})

	if ev.Type != "CLICK" {
		t.Fatalf("expected type CLICK, got %q", ev.Type)
	}
	if ev.Impact != 0.92 {
		t.Fatalf("expected impact 0.92, got %v", ev.Impact)
	}
	if !ev.Timestamp.Equal(ts) {
		t.Fatalf("expected timestamp %v, got %v", ts, ev.Timestamp)
	}
	id, ok := ev.ActivityID()
	if !ok || id != "checkout" {
		t.Fatalf("expected activity checkout, got %q (ok=%v)", id, ok)
	}
}

func TestDecodeEventTimestampString(t *testing.T) {
	ev := DecodeEvent(map[string]any{"timestamp": "2025-03-14T09:00:00Z"})
	want := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("expected parsed timestamp %v, got %v", want, ev.Timestamp)
	}

	ev = DecodeEvent(map[string]any{"timestamp": "not-a-time"})
	if ev.Timestamp.IsZero() {
		t.Fatalf("expected fallback timestamp for malformed value")
	}
}

func TestDecodeEventIntegerImpact(t *testing.T) {
	ev := DecodeEvent(map[string]any{"impact": 1})
	if ev.Impact != 1.0 {
		t.Fatalf("expected impact 1.0, got %v", ev.Impact)
	}
}

func TestDecodeEventStringMapData(t *testing.T) {
	ev := DecodeEvent(map[string]any{"data": map[string]string{"activity_id": "browse"}})
	id, ok := ev.ActivityID()
	if !ok || id != "browse" {
		t.Fatalf("expected activity browse, got %q (ok=%v)", id, ok)
	}
}

func TestActivityIDRejectsNonString(t *testing.T) {
	ev := Event{Data: map[string]any{"activity_id": 7}}
	if _, ok := ev.ActivityID(); ok {
		t.Fatalf("expected no activity for numeric value")
	}
	ev = Event{Data: map[string]any{"activity_id": ""}}
	if _, ok := ev.ActivityID(); ok {
		t.Fatalf("expected no activity for empty string")
	}
	ev = Event{}
	if _, ok := ev.ActivityID(); ok {
		t.Fatalf("expected no activity without data")
	}
}
