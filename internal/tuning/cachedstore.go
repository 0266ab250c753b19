package tuning

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/cache"
)

const paramKeyPrefix = "pulse:param:"

// CachedStore wraps an inner ParameterStore with a write-through external
// cache. Cached values found at construction time seed the inner store, so
// tuned parameters survive process restarts when backed by Valkey. Reads
// never touch the network.
type CachedStore struct {
	logger   *slog.Logger
	inner    ParameterStore
	provider cache.Provider
	ttl      time.Duration
	timeout  time.Duration
}

// NewCachedStore hydrates inner from the cache and returns the wrapping
// store. A nil inner falls back to a fresh MemoryStore; a zero ttl keeps
// cached values without expiry.
func NewCachedStore(logger *slog.Logger, inner ParameterStore, provider cache.Provider, ttl time.Duration) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if inner == nil {
		inner = NewMemoryStore()
	}
	s := &CachedStore{
		logger:   logger,
		inner:    inner,
		provider: provider,
		ttl:      ttl,
		timeout:  500 * time.Millisecond,
	}
	s.hydrate()
	return s
}

func (s *CachedStore) hydrate() {
	if s.provider == nil {
		return
	}
	restored := 0
	for _, name := range ParameterNames() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		data, err := s.provider.Get(ctx, paramKeyPrefix+name)
		cancel()
		if err != nil {
			if !errors.Is(err, cache.ErrCacheMiss) {
				s.logger.Warn("parameter cache read failed", slog.String("parameter", name), slog.Any("error", err))
			}
			continue
		}
		value, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			s.logger.Warn("discarding malformed cached parameter", slog.String("parameter", name), slog.String("value", string(data)))
			continue
		}
		if s.inner.ApplyValue(name, value) {
			restored++
		}
	}
	if restored > 0 {
		s.logger.Info("restored parameters from cache", slog.Int("count", restored))
	}
}

// CurrentValue returns the inner store's value. The cache is not consulted
// on the read path.
func (s *CachedStore) CurrentValue(parameter string) float64 {
	return s.inner.CurrentValue(parameter)
}

// ApplyValue applies to the inner store and writes through to the cache on
// success. Cache write failures are logged and do not fail the apply.
func (s *CachedStore) ApplyValue(parameter string, value float64) bool {
	if !s.inner.ApplyValue(parameter, value) {
		return false
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.provider.Set(ctx, paramKeyPrefix+parameter, []byte(strconv.FormatFloat(value, 'g', -1, 64)), s.ttl)
		cancel()
		if err != nil {
			s.logger.Warn("parameter cache write failed", slog.String("parameter", parameter), slog.Any("error", err))
		}
	}
	return true
}
