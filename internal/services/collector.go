package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/repo"
)

// Collector polls an upstream telemetry feed and replays the fetched events
// into the analytics service. It is optional; embedded deployments feed the
// service through Ingest directly.
type Collector struct {
	logger   *slog.Logger
	feed     *repo.FeedClient
	svc      *AnalyticsService
	interval time.Duration
	limit    int
}

// NewCollector builds a poller for the given feed. Zero interval and limit
// fall back to 5s and 500 events per poll.
func NewCollector(logger *slog.Logger, feed *repo.FeedClient, svc *AnalyticsService, interval time.Duration, limit int) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if limit <= 0 {
		limit = 500
	}
	return &Collector{
		logger:   logger,
		feed:     feed,
		svc:      svc,
		interval: interval,
		limit:    limit,
	}
}

// Run polls the feed until ctx is cancelled. A persisted cursor, when
// present, resumes the feed position from a previous run. Poll failures are
// logged and retried on the next tick.
func (c *Collector) Run(ctx context.Context) {
	since, ok := c.feed.Cursor(ctx)
	if ok {
		c.logger.Info("resuming telemetry feed", slog.Time("since", since))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since = c.pollOnce(ctx, since)
		}
	}
}

func (c *Collector) pollOnce(ctx context.Context, since time.Time) time.Time {
	events, next, err := c.feed.FetchEvents(ctx, since, c.limit)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("telemetry feed poll failed", slog.Any("error", err))
		}
		return since
	}

	for _, raw := range events {
		c.svc.IngestRaw(raw)
	}
	if len(events) > 0 {
		metrics.ObserveFeedBatch(len(events))
		c.logger.Debug("ingested feed batch", slog.Int("events", len(events)), slog.Time("next", next))
	}

	if next.After(since) {
		if err := c.feed.SaveCursor(ctx, next); err != nil {
			c.logger.Warn("feed cursor save failed", slog.Any("error", err))
		}
		return next
	}
	return since
}
