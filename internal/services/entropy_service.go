package services

import (
	"log"

	"github.com/pkoukk/tiktoken-go"

	"aos/internal/models"
)

// ResetDecision is the output of one reset-policy evaluation. It is transient:
// produced per call, returned to the caller, never persisted.
type ResetDecision struct {
	Tokens      int     `json:"tokens"`
	MaxTokens   int     `json:"max_tokens"`
	Pressure    float64 `json:"pressure"`
	Anxiety     float64 `json:"anxiety"`
	ShouldReset bool    `json:"should_reset"`
}

// EntropyService measures context pressure (token count) and failure pressure
// (anxiety) and decides when the agent's working memory must be discarded.
type EntropyService struct {
	encoder         *tiktoken.Tiktoken
	maxTokens       int
	criticalAnxiety float64
	window          int
}

// NewEntropyService creates the reset decision engine. It tries to load the
// cl100k_base tiktoken encoding; when that fails (offline environments) it
// falls back to the ~4 chars/token heuristic, which stays deterministic and
// monotonic in input length.
func NewEntropyService(maxTokens int, criticalAnxiety float64, window int) *EntropyService {
	if maxTokens <= 0 {
		maxTokens = 128000
	}
	if criticalAnxiety <= 0 {
		criticalAnxiety = 0.8
	}
	if window <= 0 {
		window = 10
	}

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("⚠️ [ENTROPY] Could not load tiktoken encoding, using char heuristic: %v", err)
		encoder = nil
	}

	return &EntropyService{
		encoder:         encoder,
		maxTokens:       maxTokens,
		criticalAnxiety: criticalAnxiety,
		window:          window,
	}
}

// MaxTokens returns the configured token budget.
func (s *EntropyService) MaxTokens() int {
	return s.maxTokens
}

// Window returns the size of the anxiety window.
func (s *EntropyService) Window() int {
	return s.window
}

// CountTokens calculates the entropy (token count) of a given text.
// Empty input always costs 0.
func (s *EntropyService) CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	if s.encoder != nil {
		return len(s.encoder.Encode(text, nil, nil))
	}
	// ceil(len/4): rough sub-word token density of natural-language/code text
	return (len(text) + 3) / 4
}

// CalculateAnxiety computes a normalized recent-failure score in [0,1] over
// the most recent events. The caller passes events ordered most-recent-first;
// only this trace's events may be passed in, never a cross-trace window.
// No events means no observed failures, which is 0.0 by definition.
func (s *EntropyService) CalculateAnxiety(recent []models.LogEvent) float64 {
	if len(recent) == 0 {
		return 0.0
	}

	if len(recent) > s.window {
		recent = recent[:s.window]
	}

	score := 0.0
	for _, event := range recent {
		switch event.Level {
		case models.LevelError:
			score += 1.0
		case models.LevelWarning:
			score += 0.5
		}
	}

	anxiety := score / float64(len(recent))
	if anxiety > 1.0 {
		anxiety = 1.0
	}
	return anxiety
}

// ShouldReset decides if the agent needs to die and be reborn. Two independent
// triggers, either alone is sufficient:
//  1. token overflow: cost exceeds 90% of the budget
//  2. panic: the recent failure rate reaches the critical anxiety threshold
func (s *EntropyService) ShouldReset(currentTokens int, recent []models.LogEvent) bool {
	if currentTokens > int(float64(s.maxTokens)*0.9) {
		return true
	}
	return s.CalculateAnxiety(recent) >= s.criticalAnxiety
}

// Evaluate runs the full policy over an already-computed token cost and
// returns the decision record used for observability and API responses.
func (s *EntropyService) Evaluate(currentTokens int, recent []models.LogEvent) ResetDecision {
	anxiety := s.CalculateAnxiety(recent)
	overflow := currentTokens > int(float64(s.maxTokens)*0.9)

	return ResetDecision{
		Tokens:      currentTokens,
		MaxTokens:   s.maxTokens,
		Pressure:    float64(currentTokens) / float64(s.maxTokens),
		Anxiety:     anxiety,
		ShouldReset: overflow || anxiety >= s.criticalAnxiety,
	}
}

// Analyze estimates the cost of a text and evaluates the policy against it.
func (s *EntropyService) Analyze(text string, recent []models.LogEvent) ResetDecision {
	return s.Evaluate(s.CountTokens(text), recent)
}
