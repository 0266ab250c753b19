package models

import "time"

// Severity grades alerts and insights.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a detector finding kept in the bounded alert log.
type Alert struct {
	ID             string
	Severity       Severity
	InsightType    InsightType
	Message        string
	Timestamp      time.Time
	Data           map[string]any
	Acknowledged   bool
	AcknowledgedAt time.Time
	AcknowledgedBy string
}

// AlertFilter narrows alert queries. Zero values leave a dimension unfiltered.
type AlertFilter struct {
	Severity     Severity
	InsightType  InsightType
	Acknowledged *bool
	Limit        int
}
