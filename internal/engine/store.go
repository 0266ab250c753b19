package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

// alertLog is a bounded, append-only alert store with acknowledge and query
// operations. IDs are stamped from a monotonic counter and lookups go
// through a map rather than a scan.
type alertLog struct {
	mu     sync.RWMutex
	limit  int
	nextID int64
	items  []*models.Alert
	byID   map[string]*models.Alert
}

func newAlertLog(limit int) *alertLog {
	if limit <= 0 {
		limit = 1
	}
	return &alertLog{limit: limit, byID: make(map[string]*models.Alert)}
}

// append stamps an ID on the alert and stores it, evicting the oldest entry
// once the log is full. The stored value is returned.
func (l *alertLog) append(alert models.Alert) models.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	alert.ID = fmt.Sprintf("ALT-%06d", l.nextID)
	stored := alert
	l.items = append(l.items, &stored)
	l.byID[stored.ID] = &stored
	if len(l.items) > l.limit {
		delete(l.byID, l.items[0].ID)
		copy(l.items[0:], l.items[1:])
		l.items = l.items[:l.limit]
	}
	return stored
}

// acknowledge marks the alert as seen by user and reports whether it exists.
func (l *alertLog) acknowledge(id, user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert, ok := l.byID[id]
	if !ok {
		return false
	}
	alert.Acknowledged = true
	alert.AcknowledgedAt = time.Now().UTC()
	alert.AcknowledgedBy = user
	return true
}

// get returns a copy of the alert with the given ID.
func (l *alertLog) get(id string) (models.Alert, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	alert, ok := l.byID[id]
	if !ok {
		return models.Alert{}, false
	}
	return *alert, true
}

// list returns matching alerts in append order. When a limit is set, only
// the most recent matches are returned.
func (l *alertLog) list(filter models.AlertFilter) []models.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]models.Alert, 0, len(l.items))
	for _, alert := range l.items {
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.InsightType != "" && alert.InsightType != filter.InsightType {
			continue
		}
		if filter.Acknowledged != nil && alert.Acknowledged != *filter.Acknowledged {
			continue
		}
		matched = append(matched, *alert)
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched
}

func (l *alertLog) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// insightLog is the bounded, append-only insight store.
type insightLog struct {
	mu     sync.RWMutex
	limit  int
	nextID int64
	items  []*models.AnalyticsInsight
	byID   map[string]*models.AnalyticsInsight
}

func newInsightLog(limit int) *insightLog {
	if limit <= 0 {
		limit = 1
	}
	return &insightLog{limit: limit, byID: make(map[string]*models.AnalyticsInsight)}
}

// append stamps an ID on the insight and stores it, evicting the oldest
// entry once the log is full. The stored value is returned.
func (l *insightLog) append(insight models.AnalyticsInsight) models.AnalyticsInsight {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	insight.ID = fmt.Sprintf("INS-%06d", l.nextID)
	stored := insight
	l.items = append(l.items, &stored)
	l.byID[stored.ID] = &stored
	if len(l.items) > l.limit {
		delete(l.byID, l.items[0].ID)
		copy(l.items[0:], l.items[1:])
		l.items = l.items[:l.limit]
	}
	return stored
}

// get returns a copy of the insight with the given ID.
func (l *insightLog) get(id string) (models.AnalyticsInsight, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	insight, ok := l.byID[id]
	if !ok {
		return models.AnalyticsInsight{}, false
	}
	return *insight, true
}

// list returns matching insights in append order. When a limit is set, only
// the most recent matches are returned.
func (l *insightLog) list(filter models.InsightFilter) []models.AnalyticsInsight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]models.AnalyticsInsight, 0, len(l.items))
	for _, insight := range l.items {
		if filter.Type != "" && insight.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && insight.Severity != filter.Severity {
			continue
		}
		matched = append(matched, *insight)
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched
}

func (l *insightLog) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
