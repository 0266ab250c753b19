package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/cache"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type stubCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string][]byte)}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

func jsonResponse(t *testing.T, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func TestFetchEventsDecodesBatch(t *testing.T) {
	since := time.Unix(1_700_000_000, 0).UTC()
	next := since.Add(time.Minute)
	client := NewFeedClient("https://feed.example.com", "/api/v1/telemetry/events", time.Second, nil, 0)
	client.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/telemetry/events" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["limit"] != float64(100) {
			t.Fatalf("unexpected limit: %v", body["limit"])
		}
		if body["since"] != since.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected since: %v", body["since"])
		}
		return jsonResponse(t, map[string]any{
			"events": []map[string]any{
				{"type": "CLICK", "impact": 0.92},
				{"type": "VIEW", "impact": 0.3},
			},
			"next_since": next,
		}), nil
	})}

	events, got, err := client.FetchEvents(context.Background(), since, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0]["type"] != "CLICK" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if !got.Equal(next) {
		t.Fatalf("expected cursor %v, got %v", next, got)
	}
}

func TestFetchEventsEmptyBatchIdles(t *testing.T) {
	since := time.Unix(1_700_000_000, 0).UTC()
	client := NewFeedClient("https://feed.example.com", "/events", time.Second, nil, 0)
	client.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]any{"events": []map[string]any{}}), nil
	})}

	events, got, err := client.FetchEvents(context.Background(), since, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty batch, got %d", len(events))
	}
	if !got.Equal(since) {
		t.Fatalf("expected cursor unchanged at %v, got %v", since, got)
	}
}

func TestFetchEventsUpstreamError(t *testing.T) {
	client := NewFeedClient("https://feed.example.com", "/events", time.Second, nil, 0)
	client.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Status:     "500 Internal Server Error",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})}

	if _, _, err := client.FetchEvents(context.Background(), time.Time{}, 10); err == nil {
		t.Fatalf("expected error for upstream failure")
	}
}

func TestFetchEventsUnconfigured(t *testing.T) {
	client := NewFeedClient("", "/events", time.Second, nil, 0)
	if _, _, err := client.FetchEvents(context.Background(), time.Time{}, 10); err == nil {
		t.Fatalf("expected error for missing base URL")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	stub := newStubCache()
	client := NewFeedClient("https://feed.example.com", "/events", time.Second, stub, 0)
	ctx := context.Background()

	if _, ok := client.Cursor(ctx); ok {
		t.Fatalf("expected no cursor on fresh cache")
	}

	ts := time.Unix(1_700_000_123, 0).UTC()
	if err := client.SaveCursor(ctx, ts); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	got, ok := client.Cursor(ctx)
	if !ok || !got.Equal(ts) {
		t.Fatalf("expected cursor %v, got %v ok=%v", ts, got, ok)
	}

	// corrupt entries are treated as absent
	if err := stub.Set(ctx, "pulse:feed:cursor", []byte("not a time"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := client.Cursor(ctx); ok {
		t.Fatalf("expected corrupt cursor to be ignored")
	}
}

func TestCursorWithoutCache(t *testing.T) {
	client := NewFeedClient("https://feed.example.com", "/events", time.Second, nil, 0)
	if _, ok := client.Cursor(context.Background()); ok {
		t.Fatalf("expected no cursor without cache")
	}
	if err := client.SaveCursor(context.Background(), time.Now()); err != nil {
		t.Fatalf("save without cache should be a no-op, got %v", err)
	}
}
