package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"aos/internal/services"
)

// AgentHandler exposes the execution agent and the reset-policy probe
type AgentHandler struct {
	agent   *services.AgentService
	entropy *services.EntropyService
	logs    *services.LogStore
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agent *services.AgentService, entropy *services.EntropyService, logs *services.LogStore) *AgentHandler {
	return &AgentHandler{agent: agent, entropy: entropy, logs: logs}
}

// TaskRequest submits one instruction to the agent
type TaskRequest struct {
	Instruction string `json:"instruction"`
}

// RunTask runs one instruction through the full agent lifecycle
// POST /api/v1/agent/task
func (h *AgentHandler) RunTask(c *fiber.Ctx) error {
	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.agent.RunTask(c.Context(), req.Instruction)
	if err != nil {
		if errors.Is(err, services.ErrEmptyInstruction) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "instruction is required",
			})
		}
		log.Printf("❌ [AGENT] Task failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Task execution failed",
		})
	}

	if result.Status == "error" {
		// The trace id still comes back so the failure can be inspected and
		// distilled later.
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.JSON(result)
}

// AnalyzeRequest probes the reset policy without running a task
type AnalyzeRequest struct {
	Text    string `json:"text"`
	TraceID string `json:"trace_id,omitempty"`
}

// Analyze returns the reset decision for a hypothetical context. When a
// trace_id is given its recent events feed the anxiety score; otherwise the
// decision is purely token pressure.
// POST /api/v1/agent/analyze
func (h *AgentHandler) Analyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	decision := h.entropy.Analyze(req.Text, nil)
	if req.TraceID != "" {
		events, err := h.logs.RecentByTrace(c.Context(), req.TraceID, h.entropy.Window())
		if err != nil {
			log.Printf("❌ [AGENT] Failed to load anxiety window for trace %s: %v", req.TraceID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load trace history",
			})
		}
		decision = h.entropy.Analyze(req.Text, events)
	}

	return c.JSON(decision)
}
