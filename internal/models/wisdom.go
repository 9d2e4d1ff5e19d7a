package models

import "time"

// WisdomItem is a durable memory card distilled from a past trace.
// At most one item exists per source trace unless an overwrite is requested.
// Manually authored cards have an empty SourceTraceID.
type WisdomItem struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	SourceTraceID string    `json:"source_trace_id,omitempty"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`

	// Reserved for semantic retrieval; never populated by current behavior.
	Embedding []float64 `json:"-"`
}
