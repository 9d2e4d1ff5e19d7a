package services

import (
	"context"
	"testing"

	"aos/internal/models"
)

func TestWisdomStore_InsertAndFindByTrace(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))
	ctx := context.Background()

	item, err := store.Insert(ctx, &models.WisdomItem{
		SourceTraceID: "trace-1",
		Title:         "Failure Pattern Detected in worker",
		Content:       "Trace trace-1 encountered 3 errors.",
		Tags:          []string{"bug", "error"},
		Confidence:    0.4,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if item.ID == "" {
		t.Fatal("Expected generated id")
	}

	found, err := store.FindByTrace(ctx, "trace-1")
	if err != nil {
		t.Fatalf("FindByTrace failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected to find the card")
	}
	if found.ID != item.ID || found.Title != item.Title {
		t.Errorf("Roundtrip mismatch: %+v vs %+v", found, item)
	}
	if len(found.Tags) != 2 || found.Tags[0] != "bug" {
		t.Errorf("Tags lost: %v", found.Tags)
	}
}

func TestWisdomStore_FindByTrace_Missing(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))

	found, err := store.FindByTrace(context.Background(), "no-such-trace")
	if err != nil {
		t.Fatalf("FindByTrace failed: %v", err)
	}
	if found != nil {
		t.Errorf("Expected nil for unknown trace, got %+v", found)
	}
}

func TestWisdomStore_DuplicateTraceReturnsWinner(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.Insert(ctx, &models.WisdomItem{
		SourceTraceID: "trace-dup", Title: "first", Content: "first card",
	})
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	second, err := store.Insert(ctx, &models.WisdomItem{
		SourceTraceID: "trace-dup", Title: "second", Content: "losing card",
	})
	if err != nil {
		t.Fatalf("Duplicate insert should converge, not fail: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected the winning card %s, got %s", first.ID, second.ID)
	}
	if second.Title != "first" {
		t.Errorf("Expected the original content to win, got %q", second.Title)
	}
}

func TestWisdomStore_ManualCardsSkipUniqueness(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))
	ctx := context.Background()

	// Cards without a source trace are operator-authored; several may coexist.
	for i := 0; i < 3; i++ {
		if _, err := store.Insert(ctx, &models.WisdomItem{
			Title: "runbook note", Content: "restart the ingest worker first",
		}); err != nil {
			t.Fatalf("Manual insert %d failed: %v", i, err)
		}
	}

	items, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 manual cards, got %d", len(items))
	}
}

func TestWisdomStore_Overwrite(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))
	ctx := context.Background()

	original, err := store.Insert(ctx, &models.WisdomItem{
		SourceTraceID: "trace-ow", Title: "old title", Content: "old content",
		Tags: []string{"stale"}, Confidence: 0.4,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated, err := store.Overwrite(ctx, original, "new title", "new content", []string{"fresh"}, 0.9)
	if err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	if updated.ID != original.ID {
		t.Errorf("Overwrite must keep identity: %s vs %s", updated.ID, original.ID)
	}

	found, err := store.FindByTrace(ctx, "trace-ow")
	if err != nil {
		t.Fatalf("FindByTrace failed: %v", err)
	}
	if found.Title != "new title" || found.Content != "new content" {
		t.Errorf("Overwrite not persisted: %+v", found)
	}
	if found.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %v", found.Confidence)
	}
	if !found.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt must survive overwrite")
	}
}

func TestWisdomStore_Search(t *testing.T) {
	store := NewWisdomStore(newTestDB(t))
	ctx := context.Background()

	cards := []*models.WisdomItem{
		{SourceTraceID: "t1", Title: "Timeout in payment gateway", Content: "retries exhausted", Tags: []string{"bug", "timeout"}},
		{SourceTraceID: "t2", Title: "Successful Execution: worker", Content: "completed in 3s", Tags: []string{"success"}},
	}
	for _, card := range cards {
		if _, err := store.Insert(ctx, card); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	hits, err := store.Search(ctx, "timeout", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(hits))
	}
	if hits[0].SourceTraceID != "t1" {
		t.Errorf("Wrong card matched: %+v", hits[0])
	}

	// LIKE wildcards in the keyword must not widen the match
	wild, err := store.Search(ctx, "%", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(wild) != 0 {
		t.Errorf("Escaped wildcard should match nothing, got %d hits", len(wild))
	}

	empty, err := store.Search(ctx, "   ", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if empty != nil {
		t.Errorf("Blank query should return nil, got %v", empty)
	}
}
