package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/cache"
	"github.com/pulsekit/pulse-tuner/internal/utils"
)

// feedCursorKey stores the last consumed feed position across restarts.
const feedCursorKey = "pulse:feed:cursor"

// FeedClient pulls raw event batches from an upstream telemetry feed. The
// payloads are loosely typed records handed to the ingest path unchanged.
type FeedClient struct {
	baseURL    string
	eventsPath string
	httpClient *http.Client
	cache      cache.Provider
	cursorTTL  time.Duration
}

// NewFeedClient constructs a client for the configured feed endpoint. The
// cache provider may be nil, in which case the cursor is not persisted.
func NewFeedClient(baseURL, eventsPath string, timeout time.Duration, provider cache.Provider, cursorTTL time.Duration) *FeedClient {
	return &FeedClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		eventsPath: eventsPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:     provider,
		cursorTTL: cursorTTL,
	}
}

// FetchEvents requests up to limit events recorded after since. It returns
// the raw records together with the position to resume from. An empty batch
// is a normal idle response, not an error.
func (c *FeedClient) FetchEvents(ctx context.Context, since time.Time, limit int) ([]map[string]any, time.Time, error) {
	if c == nil {
		return nil, time.Time{}, fmt.Errorf("feed client not initialised")
	}
	if c.baseURL == "" {
		return nil, time.Time{}, fmt.Errorf("feed base URL not configured")
	}

	payload := map[string]any{"limit": limit}
	if !since.IsZero() {
		payload["since"] = since.Format(time.RFC3339Nano)
	}

	var response struct {
		Events    []map[string]any `json:"events"`
		NextSince time.Time        `json:"next_since"`
	}

	if err := c.postJSON(ctx, c.eventsURL(), payload, &response); err != nil {
		return nil, time.Time{}, fmt.Errorf("telemetry feed request failed: %w", err)
	}

	next := response.NextSince
	if next.IsZero() {
		next = since
	}
	return response.Events, next, nil
}

// Cursor returns the persisted feed position from a previous run, if any.
func (c *FeedClient) Cursor(ctx context.Context) (time.Time, bool) {
	if c == nil || c.cache == nil {
		return time.Time{}, false
	}
	data, err := c.cache.Get(ctx, feedCursorKey)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := utils.ParseRFC3339(string(data))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// SaveCursor persists the feed position so a restart resumes where the
// previous run stopped.
func (c *FeedClient) SaveCursor(ctx context.Context, ts time.Time) error {
	if c == nil || c.cache == nil || ts.IsZero() {
		return nil
	}
	return c.cache.Set(ctx, feedCursorKey, []byte(ts.Format(time.RFC3339Nano)), c.cursorTTL)
}

func (c *FeedClient) eventsURL() string { return c.resolvePath(c.eventsPath) }

func (c *FeedClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *FeedClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return errors.New("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
