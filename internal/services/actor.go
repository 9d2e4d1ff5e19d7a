package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aos/internal/models"
)

// Output bounds of the execution capability.
const (
	maxAnswerChars   = 4000
	maxNextSteps     = 10
	maxNextStepChars = 200
)

// ActRequest carries one instruction into the execution capability together
// with the memory context and a trace-scoped log sink.
type ActRequest struct {
	Instruction string
	Memory      string
	TraceID     string

	// Log appends a LogEvent to the current trace. Implementations should log
	// every meaningful step; the events feed the anxiety window.
	Log func(level, message string)
}

// ActResult is the bounded output of one execution.
type ActResult struct {
	Answer    string   `json:"answer"`
	NextSteps []string `json:"next_steps,omitempty"`
}

// Actor is the pluggable execution capability of the agent loop. A nil Actor
// puts the loop into the explicitly-labeled NoLLM degraded mode.
type Actor interface {
	Act(ctx context.Context, req *ActRequest) (*ActResult, error)
}

const actorSystemPrompt = `You are Sisyphus, an execution agent. Your job: turn the user's instruction into an actionable answer.

Constraints (important):
- Never reveal secrets. Redact anything that looks like keys/passwords.
- Keep output concise and actionable.
- Respond with a JSON object only: {"answer": "...", "next_steps": ["...", ...]}. The answer is at most 4000 characters; next_steps is optional with at most 10 short suggestions.`

// LLMActor executes instructions via an OpenAI-compatible model.
type LLMActor struct {
	llm *LLMClient
}

// NewLLMActor creates the model-backed execution capability.
func NewLLMActor(llm *LLMClient) *LLMActor {
	return &LLMActor{llm: llm}
}

// Act implements Actor.
func (a *LLMActor) Act(ctx context.Context, req *ActRequest) (*ActResult, error) {
	messages := []chatMessage{
		{Role: "system", Content: actorSystemPrompt},
	}
	if strings.TrimSpace(req.Memory) != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "Relevant memory cards (inverse-entropy distilled):\n" + req.Memory,
		})
	} else {
		messages = append(messages, chatMessage{Role: "system", Content: "No memory cards available yet."})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Instruction})

	if req.Log != nil {
		req.Log(models.LevelInfo, fmt.Sprintf("llm.request model=%s", a.llm.Model))
	}

	content, err := a.llm.Chat(ctx, messages, 0.2)
	if err != nil {
		return nil, err
	}

	result := parseActResult(content)
	if req.Log != nil {
		req.Log(models.LevelInfo, fmt.Sprintf("llm.response answer_chars=%d next_steps=%d", len(result.Answer), len(result.NextSteps)))
	}
	return result, nil
}

// parseActResult decodes the model reply, falling back to treating the whole
// reply as the answer when it is not the requested JSON shape.
func parseActResult(content string) *ActResult {
	var result ActResult
	if raw := extractJSONObject(content); raw != "" {
		if err := json.Unmarshal([]byte(raw), &result); err == nil && result.Answer != "" {
			return boundActResult(&result)
		}
	}
	return boundActResult(&ActResult{Answer: content})
}

func boundActResult(result *ActResult) *ActResult {
	result.Answer = strings.TrimSpace(result.Answer)
	if len(result.Answer) > maxAnswerChars {
		result.Answer = result.Answer[:maxAnswerChars]
	}

	steps := make([]string, 0, len(result.NextSteps))
	for _, step := range result.NextSteps {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		if len(step) > maxNextStepChars {
			step = step[:maxNextStepChars]
		}
		steps = append(steps, step)
		if len(steps) >= maxNextSteps {
			break
		}
	}
	if len(steps) == 0 {
		steps = nil
	}
	result.NextSteps = steps
	return result
}
