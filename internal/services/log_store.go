package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"aos/internal/database"
	"aos/internal/models"
)

// LogStore is the append-only, trace-scoped, time-ordered event log.
// Events within a trace are totally ordered by timestamp with the insertion
// id as tiebreaker; rows are never updated.
type LogStore struct {
	db *database.DB
}

// NewLogStore creates a new trace log store
func NewLogStore(db *database.DB) *LogStore {
	return &LogStore{db: db}
}

// LogFilter narrows the generic listing endpoint.
type LogFilter struct {
	TraceID string
	Level   string
	Limit   int
	Offset  int
}

const logColumns = "id, received_ns, ts_ns, trace_id, span_id, parent_span_id, span_name, level, logger_name, message, attributes"

// Append inserts a batch of events in one transaction. A failed batch writes
// nothing: silent partial loss would corrupt the reset/distillation decisions
// built on top of this log.
func (s *LogStore) Append(ctx context.Context, events []models.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_events (received_ns, ts_ns, trace_id, span_id, parent_span_id, span_name, level, logger_name, message, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, event := range events {
		received := event.ReceivedAt
		if received.IsZero() {
			received = now
		}
		ts := event.Timestamp
		if ts.IsZero() {
			ts = received
		}

		var attrs interface{}
		if len(event.Attributes) > 0 {
			encoded, err := json.Marshal(event.Attributes)
			if err != nil {
				return fmt.Errorf("failed to encode attributes: %w", err)
			}
			attrs = string(encoded)
		}

		if _, err := stmt.ExecContext(ctx,
			received.UnixNano(),
			ts.UnixNano(),
			event.TraceID,
			nullString(event.SpanID),
			nullString(event.ParentSpanID),
			nullString(event.SpanName),
			models.NormalizeLevel(event.Level),
			event.LoggerName,
			event.Message,
			attrs,
		); err != nil {
			return fmt.Errorf("failed to insert log event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log batch: %w", err)
	}
	return nil
}

// AppendOne inserts a single event.
func (s *LogStore) AppendOne(ctx context.Context, event models.LogEvent) error {
	return s.Append(ctx, []models.LogEvent{event})
}

// ListByTrace returns the full chronological history of one trace.
// limit <= 0 means unbounded.
func (s *LogStore) ListByTrace(ctx context.Context, traceID string, limit int) ([]models.LogEvent, error) {
	query := "SELECT " + logColumns + " FROM log_events WHERE trace_id = ? ORDER BY ts_ns ASC, id ASC"
	args := []interface{}{traceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// RecentByTrace returns the most recent events of one trace, newest first.
// This is the anxiety window: it is always scoped to a single trace.
func (s *LogStore) RecentByTrace(ctx context.Context, traceID string, limit int) ([]models.LogEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	query := "SELECT " + logColumns + " FROM log_events WHERE trace_id = ? ORDER BY ts_ns DESC, id DESC LIMIT ?"
	return s.queryEvents(ctx, query, traceID, limit)
}

// List returns events matching the filter, newest first.
func (s *LogStore) List(ctx context.Context, filter LogFilter) ([]models.LogEvent, error) {
	var conditions []string
	var args []interface{}

	if filter.TraceID != "" {
		conditions = append(conditions, "trace_id = ?")
		args = append(args, filter.TraceID)
	}
	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, models.NormalizeLevel(filter.Level))
	}

	query := "SELECT " + logColumns + " FROM log_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return s.queryEvents(ctx, query, args...)
}

// ListTraces aggregates events into per-trace summaries, most recent first.
func (s *LogStore) ListTraces(ctx context.Context, limit int) ([]models.TraceSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, COUNT(*), MIN(ts_ns), MAX(ts_ns), GROUP_CONCAT(DISTINCT level)
		FROM log_events
		GROUP BY trace_id
		ORDER BY MAX(ts_ns) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate traces: %w", err)
	}
	defer rows.Close()

	var summaries []models.TraceSummary
	for rows.Next() {
		var summary models.TraceSummary
		var firstNs, lastNs int64
		var levels sql.NullString
		if err := rows.Scan(&summary.TraceID, &summary.EventCount, &firstNs, &lastNs, &levels); err != nil {
			return nil, fmt.Errorf("failed to scan trace summary: %w", err)
		}
		summary.FirstSeen = time.Unix(0, firstNs).UTC()
		summary.LastSeen = time.Unix(0, lastNs).UTC()
		if levels.Valid && levels.String != "" {
			summary.Levels = strings.Split(levels.String, ",")
			sort.Strings(summary.Levels)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// PurgeOlderThan deletes events whose timestamp is before the cutoff.
// Distilled wisdom survives; a trace with purged history is a valid NotFound
// state for later distillation requests, not an error.
func (s *LogStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM log_events WHERE ts_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge log events: %w", err)
	}
	return result.RowsAffected()
}

func (s *LogStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]models.LogEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log events: %w", err)
	}
	defer rows.Close()

	var events []models.LogEvent
	for rows.Next() {
		event, err := scanLogEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanLogEvent(rows *sql.Rows) (models.LogEvent, error) {
	var event models.LogEvent
	var receivedNs, tsNs int64
	var spanID, parentSpanID, spanName, loggerName, message, attrs sql.NullString

	if err := rows.Scan(
		&event.ID,
		&receivedNs,
		&tsNs,
		&event.TraceID,
		&spanID,
		&parentSpanID,
		&spanName,
		&event.Level,
		&loggerName,
		&message,
		&attrs,
	); err != nil {
		return event, fmt.Errorf("failed to scan log event: %w", err)
	}

	event.ReceivedAt = time.Unix(0, receivedNs).UTC()
	event.Timestamp = time.Unix(0, tsNs).UTC()
	event.SpanID = spanID.String
	event.ParentSpanID = parentSpanID.String
	event.SpanName = spanName.String
	event.LoggerName = loggerName.String
	event.Message = message.String

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &event.Attributes); err != nil {
			// A corrupt attribute blob should not hide the event itself.
			event.Attributes = map[string]interface{}{"_raw": attrs.String}
		}
	}
	return event, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
