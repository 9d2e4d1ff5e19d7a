package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
// Both the LLM summarizer and the LLM actor share it; every call carries a
// hard timeout so no core operation can hang on the network.
type LLMClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewLLMClient creates a client with the given request timeout.
func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration) *LLMClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat performs a non-streaming completion and returns the first choice's
// message content.
func (c *LLMClient) Chat(ctx context.Context, messages []chatMessage, temperature float64) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":       c.Model,
		"messages":    messages,
		"stream":      false,
		"temperature": temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completion API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode chat completion response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat completion response")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// extractJSONObject pulls the outermost JSON object out of a model reply that
// may be wrapped in markdown fences or prose.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
