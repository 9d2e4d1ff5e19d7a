package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"aos/internal/models"
	"aos/internal/services"
)

// Ingest payload limits.
const (
	maxIngestBatch     = 1000
	maxAttributesBytes = 100 * 1024
)

// LogsHandler handles telemetry ingestion and trace queries
type LogsHandler struct {
	logStore *services.LogStore
	metrics  *services.Metrics
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(logStore *services.LogStore, metrics *services.Metrics) *LogsHandler {
	return &LogsHandler{logStore: logStore, metrics: metrics}
}

// LogEventCreate is the wire shape accepted by the ingest endpoint.
type LogEventCreate struct {
	Timestamp    string                 `json:"timestamp,omitempty"`
	TraceID      string                 `json:"trace_id"`
	SpanID       string                 `json:"span_id,omitempty"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	SpanName     string                 `json:"span_name,omitempty"`
	Level        string                 `json:"level,omitempty"`
	LoggerName   string                 `json:"logger_name,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// Ingest accepts a batch of log events from agents or external sources
// POST /api/v1/telemetry/logs
func (h *LogsHandler) Ingest(c *fiber.Ctx) error {
	var entries []LogEventCreate
	if err := c.BodyParser(&entries); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: expected a JSON array of log events",
		})
	}
	if len(entries) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if len(entries) > maxIngestBatch {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Too many events in one batch (max 1000)",
		})
	}

	now := time.Now().UTC()
	events := make([]models.LogEvent, 0, len(entries))
	for _, entry := range entries {
		if entry.TraceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Every log event requires a trace_id",
			})
		}
		if len(entry.Attributes) > 0 {
			encoded, err := json.Marshal(entry.Attributes)
			if err != nil || len(encoded) > maxAttributesBytes {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Attributes payload too large (max 100KB)",
				})
			}
		}

		events = append(events, models.LogEvent{
			ReceivedAt:   now,
			Timestamp:    parseTimestamp(entry.Timestamp, now),
			TraceID:      entry.TraceID,
			SpanID:       entry.SpanID,
			ParentSpanID: entry.ParentSpanID,
			SpanName:     entry.SpanName,
			Level:        models.NormalizeLevel(entry.Level),
			LoggerName:   entry.LoggerName,
			Message:      entry.Message,
			Attributes:   entry.Attributes,
		})
	}

	if err := h.logStore.Append(c.Context(), events); err != nil {
		log.Printf("❌ [TELEMETRY] Failed to ingest %d events: %v", len(events), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store log events",
		})
	}

	h.metrics.ObserveIngest(len(events))
	return c.SendStatus(fiber.StatusNoContent)
}

// List returns log events with optional filters, newest first
// GET /api/v1/telemetry/logs?trace_id=...&level=ERROR&limit=100&offset=0
func (h *LogsHandler) List(c *fiber.Ctx) error {
	filter := services.LogFilter{
		TraceID: c.Query("trace_id", ""),
		Level:   c.Query("level", ""),
		Limit:   c.QueryInt("limit", 100),
		Offset:  c.QueryInt("offset", 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, err := h.logStore.List(c.Context(), filter)
	if err != nil {
		log.Printf("❌ [TELEMETRY] Failed to list logs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve log events",
		})
	}

	if events == nil {
		events = []models.LogEvent{}
	}
	return c.JSON(events)
}

// ListTraces returns unique traces with aggregated info, most recent first
// GET /api/v1/telemetry/traces?limit=50
func (h *LogsHandler) ListTraces(c *fiber.Ctx) error {
	summaries, err := h.logStore.ListTraces(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		log.Printf("❌ [TELEMETRY] Failed to list traces: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve traces",
		})
	}

	if summaries == nil {
		summaries = []models.TraceSummary{}
	}
	return c.JSON(summaries)
}

// TraceLogs returns the full chronological history of one trace
// GET /api/v1/telemetry/logs/:trace_id
func (h *LogsHandler) TraceLogs(c *fiber.Ctx) error {
	traceID := c.Params("trace_id")

	events, err := h.logStore.ListByTrace(c.Context(), traceID, 0)
	if err != nil {
		log.Printf("❌ [TELEMETRY] Failed to load trace %s: %v", traceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve trace logs",
		})
	}

	if events == nil {
		events = []models.LogEvent{}
	}
	return c.JSON(events)
}

// TraceTree returns the span tree of one trace for dashboard rendering
// GET /api/v1/telemetry/traces/:trace_id/tree
func (h *LogsHandler) TraceTree(c *fiber.Ctx) error {
	traceID := c.Params("trace_id")

	events, err := h.logStore.ListByTrace(c.Context(), traceID, 0)
	if err != nil {
		log.Printf("❌ [TELEMETRY] Failed to load trace %s: %v", traceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve trace logs",
		})
	}
	if len(events) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No log events found for trace",
		})
	}

	return c.JSON(fiber.Map{
		"trace_id":    traceID,
		"event_count": len(events),
		"roots":       buildSpanTree(events),
	})
}

// buildSpanTree groups a trace's events into spans and links them into a
// forest by parent span id. Events without a span id land in a synthetic
// root node; chronological order within each span is preserved.
func buildSpanTree(events []models.LogEvent) []*models.SpanNode {
	nodes := make(map[string]*models.SpanNode)
	var order []string

	node := func(spanID string) *models.SpanNode {
		if n, ok := nodes[spanID]; ok {
			return n
		}
		n := &models.SpanNode{SpanID: spanID}
		nodes[spanID] = n
		order = append(order, spanID)
		return n
	}

	orphan := node("")
	parents := make(map[string]string)
	for _, event := range events {
		n := node(event.SpanID)
		if n.Name == "" {
			n.Name = event.SpanName
		}
		n.Events = append(n.Events, event)
		if event.ParentSpanID != "" && event.SpanID != "" {
			parents[event.SpanID] = event.ParentSpanID
		}
	}

	var roots []*models.SpanNode
	for _, spanID := range order {
		n := nodes[spanID]
		if spanID == "" {
			continue
		}
		if parentID, ok := parents[spanID]; ok && parentID != spanID {
			parent := node(parentID)
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}

	// Synthetic parents created by dangling parent_span_id references are
	// roots themselves; the orphan node is only included when populated.
	for _, spanID := range order {
		n := nodes[spanID]
		if spanID == "" || len(n.Events) > 0 {
			continue
		}
		if _, hasParent := parents[spanID]; !hasParent {
			roots = append(roots, n)
		}
	}
	if len(orphan.Events) > 0 {
		roots = append(roots, orphan)
	}
	return roots
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC()
	}
	return fallback
}
