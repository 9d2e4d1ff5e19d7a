package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"aos/internal/models"
)

const summarizerSystemPrompt = `You are Odysseus, a log distillation agent. Given a trace worth of logs, produce ONE memory card as a JSON object with exactly these fields: "title" (string, max 120 chars), "summary" (string, max 1200 chars), "tags" (array of short lowercase keywords, no spaces), "confidence" (number between 0.0 and 1.0).

Rules:
- Be specific about what happened and what to do next time.
- Confidence should reflect how strongly the logs support the conclusion.
- Avoid secrets, passwords, API keys; redact if present.
- Respond with the JSON object only.`

// LLMSummarizer distills a trace via an OpenAI-compatible model. The rendered
// log text is size-bounded and secret-redacted before it leaves the process.
type LLMSummarizer struct {
	llm *LLMClient
}

// NewLLMSummarizer creates the model-backed summarization strategy.
func NewLLMSummarizer(llm *LLMClient) *LLMSummarizer {
	return &LLMSummarizer{llm: llm}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, traceID string, events []models.LogEvent) (*Summary, error) {
	payload := renderLogText(events)

	user := fmt.Sprintf(
		"Distill this trace into one actionable memory card.\n\ntrace_id: %s\nlog_count: %d\n\nlogs:\n%s\n",
		traceID, len(events), payload)

	content, err := s.llm.Chat(ctx, []chatMessage{
		{Role: "system", Content: summarizerSystemPrompt},
		{Role: "user", Content: user},
	}, 0.3)
	if err != nil {
		return nil, fmt.Errorf("llm summarization failed: %w", err)
	}

	raw := extractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("llm summarization returned no JSON object")
	}

	var summary Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse memory card JSON: %w", err)
	}

	sanitizeSummary(&summary)
	if summary.Title == "" || summary.Summary == "" {
		return nil, fmt.Errorf("llm summarization produced an empty memory card")
	}

	log.Printf("✅ [ODYSSEUS] LLM memory card generated for trace %s (confidence %.2f)", traceID, summary.Confidence)
	return &summary, nil
}

// sanitizeSummary enforces the output contract on model responses: bounded
// lengths, lowercase tags, clamped confidence, and no leaked secrets in
// anything that will be persisted.
func sanitizeSummary(summary *Summary) {
	summary.Title = redactAndTruncate(strings.TrimSpace(summary.Title), 120)
	summary.Summary = redactAndTruncate(strings.TrimSpace(summary.Summary), 1200)

	tags := make([]string, 0, len(summary.Tags))
	for _, tag := range summary.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.ReplaceAll(tag, " ", "-")
		if tag != "" && len(tag) <= 50 {
			tags = append(tags, tag)
		}
		if len(tags) >= 10 {
			break
		}
	}
	summary.Tags = tags

	if summary.Confidence < 0 {
		summary.Confidence = 0
	}
	if summary.Confidence > 1 {
		summary.Confidence = 1
	}
}
