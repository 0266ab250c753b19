package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get returned %q, err=%v", got, err)
	}
	if err := m.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderTTL(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before expiry, got %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	src := []byte("abc")
	if err := m.Set(ctx, "k", src, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	src[0] = 'z'

	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q err=%v", got, err)
	}
	got[0] = 'q'

	again, err := m.Get(ctx, "k")
	if err != nil || string(again) != "abc" {
		t.Fatalf("expected stable copy, got %q err=%v", again, err)
	}
}
