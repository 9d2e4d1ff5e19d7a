package models

import (
	"strings"
	"time"
)

// Log severity levels stored with each event.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// NormalizeLevel maps common level spellings onto the canonical set.
// Unknown levels default to INFO so ingestion never rejects on severity alone.
func NormalizeLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR", "ERR", "FATAL", "CRITICAL":
		return LevelError
	case "WARNING", "WARN":
		return LevelWarning
	default:
		return LevelInfo
	}
}

// LogEvent is one observed occurrence during a task execution. Events sharing
// a trace ID form the unit of reset and distillation; they are never mutated
// after ingestion.
type LogEvent struct {
	ID           int64                  `json:"id"`
	ReceivedAt   time.Time              `json:"received_at"`
	Timestamp    time.Time              `json:"timestamp"`
	TraceID      string                 `json:"trace_id"`
	SpanID       string                 `json:"span_id,omitempty"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	SpanName     string                 `json:"span_name,omitempty"`
	Level        string                 `json:"level"`
	LoggerName   string                 `json:"logger_name"`
	Message      string                 `json:"message"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// TraceSummary is the aggregated view of one trace for listing endpoints.
type TraceSummary struct {
	TraceID    string    `json:"trace_id"`
	EventCount int       `json:"event_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Levels     []string  `json:"levels"`
}

// SpanNode is one node of the span tree assembled for the dashboard.
// Events without a span ID are attached to a synthetic root node.
type SpanNode struct {
	SpanID   string     `json:"span_id"`
	Name     string     `json:"name,omitempty"`
	Events   []LogEvent `json:"events"`
	Children []*SpanNode `json:"children,omitempty"`
}
