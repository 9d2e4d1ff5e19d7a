package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"aos/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db         *database.DB
	summarizer string
	llmEnabled bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, summarizer string, llmEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, summarizer: summarizer, llmEnabled: llmEnabled}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	dbStatus := "up"
	if err := h.db.PingContext(c.Context()); err != nil {
		dbStatus = "down"
	}

	return c.JSON(fiber.Map{
		"status":     "healthy",
		"database":   dbStatus,
		"summarizer": h.summarizer,
		"llm":        h.llmEnabled,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
