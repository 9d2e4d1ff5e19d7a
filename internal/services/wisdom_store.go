package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"aos/internal/database"
	"aos/internal/models"
)

// WisdomStore is the durable repository of distilled memory cards.
// The unique index on source_trace_id makes "one card per trace" a database
// invariant rather than a best-effort check.
type WisdomStore struct {
	db *database.DB
}

// NewWisdomStore creates a new wisdom store
func NewWisdomStore(db *database.DB) *WisdomStore {
	return &WisdomStore{db: db}
}

const wisdomColumns = "id, created_ns, updated_ns, source_trace_id, title, content, tags, confidence"

// FindByTrace returns the card distilled from the given trace, or nil when
// none exists.
func (s *WisdomStore) FindByTrace(ctx context.Context, traceID string) (*models.WisdomItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+wisdomColumns+" FROM wisdom_items WHERE source_trace_id = ?", traceID)
	item, err := scanWisdomItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wisdom by trace: %w", err)
	}
	return item, nil
}

// Insert persists a new card. When two distillations of the same trace race,
// the unique index rejects the loser; Insert then returns the winning row so
// concurrent callers converge on one item instead of erroring.
func (s *WisdomStore) Insert(ctx context.Context, item *models.WisdomItem) (*models.WisdomItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wisdom_items (id, created_ns, updated_ns, source_trace_id, title, content, tags, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.CreatedAt.UnixNano(),
		item.UpdatedAt.UnixNano(),
		nullString(item.SourceTraceID),
		item.Title,
		item.Content,
		strings.Join(item.Tags, ","),
		item.Confidence,
	)
	if err != nil {
		if item.SourceTraceID != "" {
			winner, findErr := s.FindByTrace(ctx, item.SourceTraceID)
			if findErr == nil && winner != nil {
				log.Printf("🔄 [WISDOM] Concurrent distillation for trace %s, returning winning card %s", item.SourceTraceID, winner.ID)
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to insert wisdom item: %w", err)
	}

	return item, nil
}

// Overwrite replaces the content of an existing card in place, keeping its
// identity and creation time.
func (s *WisdomStore) Overwrite(ctx context.Context, existing *models.WisdomItem, title, content string, tags []string, confidence float64) (*models.WisdomItem, error) {
	updated := *existing
	updated.Title = title
	updated.Content = content
	updated.Tags = tags
	updated.Confidence = confidence
	updated.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE wisdom_items SET title = ?, content = ?, tags = ?, confidence = ?, updated_ns = ?
		WHERE id = ?
	`, title, content, strings.Join(tags, ","), confidence, updated.UpdatedAt.UnixNano(), existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to overwrite wisdom item: %w", err)
	}
	return &updated, nil
}

// ListRecent returns the newest cards first.
func (s *WisdomStore) ListRecent(ctx context.Context, limit int) ([]models.WisdomItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.queryItems(ctx,
		"SELECT "+wisdomColumns+" FROM wisdom_items ORDER BY created_ns DESC LIMIT ?", limit)
}

// Search performs a substring match over title, tags, and content.
func (s *WisdomStore) Search(ctx context.Context, keyword string, limit int) ([]models.WisdomItem, error) {
	needle := strings.TrimSpace(keyword)
	if needle == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	pattern := "%" + escapeLike(needle) + "%"
	return s.queryItems(ctx, `
		SELECT `+wisdomColumns+` FROM wisdom_items
		WHERE title LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY created_ns DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
}

func (s *WisdomStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]models.WisdomItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wisdom items: %w", err)
	}
	defer rows.Close()

	var items []models.WisdomItem
	for rows.Next() {
		item, err := scanWisdomItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wisdom item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWisdomItem(row rowScanner) (*models.WisdomItem, error) {
	var item models.WisdomItem
	var createdNs, updatedNs int64
	var sourceTrace, tags sql.NullString
	var confidence sql.NullFloat64

	if err := row.Scan(
		&item.ID,
		&createdNs,
		&updatedNs,
		&sourceTrace,
		&item.Title,
		&item.Content,
		&tags,
		&confidence,
	); err != nil {
		return nil, err
	}

	item.CreatedAt = time.Unix(0, createdNs).UTC()
	item.UpdatedAt = time.Unix(0, updatedNs).UTC()
	item.SourceTraceID = sourceTrace.String
	item.Confidence = confidence.Float64
	if tags.Valid && tags.String != "" {
		item.Tags = strings.Split(tags.String, ",")
	}
	return &item, nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
