package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"aos/internal/models"
)

// Summarization limits when rendering a trace for an external model.
// Chronological order is preserved; overflow is dropped from the tail.
const (
	maxDistillEvents = 200
	maxDistillChars  = 18000
)

// heuristicConfidence is recorded on cards produced without a model. The
// heuristic only inspects severity counts, so its conclusions are weak.
const heuristicConfidence = 0.4

// ErrNoSummarizer is returned when distillation is requested but no
// summarization strategy is configured.
var ErrNoSummarizer = errors.New("no summarizer configured")

// Summary is the four-field output every summarization strategy must produce.
type Summary struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// Summarizer turns a trace's chronological log history into one Summary.
// Implementations must not hang: external calls carry their own timeouts.
type Summarizer interface {
	Summarize(ctx context.Context, traceID string, events []models.LogEvent) (*Summary, error)
}

// HeuristicSummarizer derives a summary from severity counts and timing alone.
// Always available; no external dependency, no failure modes beyond empty input.
type HeuristicSummarizer struct{}

// NewHeuristicSummarizer creates the fallback summarization strategy.
func NewHeuristicSummarizer() *HeuristicSummarizer {
	return &HeuristicSummarizer{}
}

// Summarize implements Summarizer.
func (s *HeuristicSummarizer) Summarize(_ context.Context, traceID string, events []models.LogEvent) (*Summary, error) {
	if len(events) == 0 {
		return nil, errors.New("no events to summarize")
	}

	errorCount := 0
	loggerSet := make(map[string]bool)
	for _, event := range events {
		if event.Level == models.LevelError {
			errorCount++
		}
		if event.LoggerName != "" {
			loggerSet[event.LoggerName] = true
		}
	}

	loggers := make([]string, 0, len(loggerSet))
	for name := range loggerSet {
		loggers = append(loggers, name)
	}
	sort.Strings(loggers)

	primaryLogger := "unknown"
	if len(loggers) > 0 {
		primaryLogger = loggers[0]
	}

	shortTrace := traceID
	if len(shortTrace) > 8 {
		shortTrace = shortTrace[:8]
	}

	if errorCount > 0 {
		lastMessage := strings.TrimSpace(events[len(events)-1].Message)
		lastMessage = redactAndTruncate(lastMessage, 120)
		return &Summary{
			Title: fmt.Sprintf("Failure Pattern Detected in %s", primaryLogger),
			Summary: fmt.Sprintf("Trace %s encountered %d errors. Primary source: %s",
				shortTrace, errorCount, lastMessage),
			Tags:       []string{"bug", "error", "failure"},
			Confidence: heuristicConfidence,
		}, nil
	}

	duration := 0.0
	if len(events) > 1 {
		duration = events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Seconds()
	}

	return &Summary{
		Title: fmt.Sprintf("Successful Execution: %s", primaryLogger),
		Summary: fmt.Sprintf("Completed task in %.2fs. Steps involved: %d entries.",
			duration, len(events)),
		Tags:       []string{"success", "performance"},
		Confidence: heuristicConfidence,
	}, nil
}

// renderLogText flattens a trace into compact redacted lines for an external
// summarizer. Caps both event count and total characters, dropping from the
// tail and never reordering.
func renderLogText(events []models.LogEvent) string {
	if len(events) > maxDistillEvents {
		events = events[:maxDistillEvents]
	}

	var sb strings.Builder
	for _, event := range events {
		line := formatLogLine(event)
		remaining := maxDistillChars - sb.Len()
		if remaining <= 0 {
			break
		}
		if len(line) > remaining {
			line = line[:remaining]
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func formatLogLine(event models.LogEvent) string {
	parts := []string{
		"ts=" + event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		"level=" + event.Level,
		"logger=" + event.LoggerName,
		"span_id=" + event.SpanID,
		"span_name=" + event.SpanName,
		"msg=" + RedactSecrets(strings.TrimSpace(event.Message)),
	}
	return strings.Join(parts, " | ")
}
