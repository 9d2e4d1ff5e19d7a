package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aos/internal/database"
	"aos/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	return db
}

func seedTrace(t *testing.T, store *LogStore, traceID string, levels ...string) {
	t.Helper()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := make([]models.LogEvent, len(levels))
	for i, level := range levels {
		events[i] = models.LogEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			TraceID:    traceID,
			Level:      level,
			LoggerName: "test",
			Message:    "event",
		}
	}
	if err := store.Append(context.Background(), events); err != nil {
		t.Fatalf("Failed to seed trace: %v", err)
	}
}

func TestLogStore_AppendAndListByTrace(t *testing.T) {
	store := NewLogStore(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		{Timestamp: base.Add(2 * time.Second), TraceID: "t1", Level: models.LevelError, Message: "third"},
		{Timestamp: base, TraceID: "t1", Level: models.LevelInfo, Message: "first",
			Attributes: map[string]interface{}{"step": "init"}},
		{Timestamp: base.Add(time.Second), TraceID: "t1", Level: "warn", Message: "second"},
		{Timestamp: base, TraceID: "t2", Level: models.LevelInfo, Message: "other trace"},
	}
	if err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.ListByTrace(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}

	// Chronological order regardless of insertion order
	if got[0].Message != "first" || got[1].Message != "second" || got[2].Message != "third" {
		t.Errorf("Events out of order: %q %q %q", got[0].Message, got[1].Message, got[2].Message)
	}

	// Level normalization on write
	if got[1].Level != models.LevelWarning {
		t.Errorf("Expected normalized WARNING, got %q", got[1].Level)
	}

	// Attributes roundtrip
	if got[0].Attributes["step"] != "init" {
		t.Errorf("Attributes lost: %v", got[0].Attributes)
	}
}

func TestLogStore_RecentByTrace(t *testing.T) {
	store := NewLogStore(newTestDB(t))
	ctx := context.Background()

	seedTrace(t, store, "t1",
		models.LevelInfo, models.LevelInfo, models.LevelError, models.LevelError)

	recent, err := store.RecentByTrace(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("RecentByTrace failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(recent))
	}
	// Most recent first: the two errors were appended last
	if recent[0].Level != models.LevelError || recent[1].Level != models.LevelError {
		t.Errorf("Expected the newest (ERROR) events, got %q %q", recent[0].Level, recent[1].Level)
	}
}

func TestLogStore_ListWithFilters(t *testing.T) {
	store := NewLogStore(newTestDB(t))
	ctx := context.Background()

	seedTrace(t, store, "t1", models.LevelInfo, models.LevelError)
	seedTrace(t, store, "t2", models.LevelError, models.LevelError)

	errorsOnly, err := store.List(ctx, LogFilter{Level: models.LevelError})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(errorsOnly) != 3 {
		t.Errorf("Expected 3 error events, got %d", len(errorsOnly))
	}

	t1Only, err := store.List(ctx, LogFilter{TraceID: "t1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(t1Only) != 2 {
		t.Errorf("Expected 2 events for t1, got %d", len(t1Only))
	}
}

func TestLogStore_ListTraces(t *testing.T) {
	store := NewLogStore(newTestDB(t))
	ctx := context.Background()

	seedTrace(t, store, "t1", models.LevelInfo, models.LevelError)
	seedTrace(t, store, "t2", models.LevelInfo)

	traces, err := store.ListTraces(ctx, 10)
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(traces) != 2 {
		t.Fatalf("Expected 2 traces, got %d", len(traces))
	}

	byID := make(map[string]models.TraceSummary)
	for _, summary := range traces {
		byID[summary.TraceID] = summary
	}
	if byID["t1"].EventCount != 2 {
		t.Errorf("Expected 2 events in t1, got %d", byID["t1"].EventCount)
	}
	if len(byID["t1"].Levels) != 2 {
		t.Errorf("Expected 2 distinct levels in t1, got %v", byID["t1"].Levels)
	}
}

func TestLogStore_PurgeOlderThan(t *testing.T) {
	store := NewLogStore(newTestDB(t))
	ctx := context.Background()

	old := models.LogEvent{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -60),
		Timestamp:  time.Now().UTC().AddDate(0, 0, -60),
		TraceID:    "old-trace", Level: models.LevelInfo, Message: "ancient",
	}
	fresh := models.LogEvent{
		TraceID: "fresh-trace", Level: models.LevelInfo, Message: "recent",
	}
	if err := store.Append(ctx, []models.LogEvent{old, fresh}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	deleted, err := store.PurgeOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted event, got %d", deleted)
	}

	remaining, err := store.ListByTrace(ctx, "fresh-trace", 0)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("Fresh event should survive the purge, got %d events", len(remaining))
	}
}

func TestLogStore_EmptyTrace(t *testing.T) {
	store := NewLogStore(newTestDB(t))

	events, err := store.ListByTrace(context.Background(), "does-not-exist", 0)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}
