package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"aos/internal/models"
	"aos/internal/services"
)

// WisdomHandler handles distillation and the wisdom repository
type WisdomHandler struct {
	distiller *services.DistillService
	wisdom    *services.WisdomStore
}

// NewWisdomHandler creates a new wisdom handler
func NewWisdomHandler(distiller *services.DistillService, wisdom *services.WisdomStore) *WisdomHandler {
	return &WisdomHandler{distiller: distiller, wisdom: wisdom}
}

// DistillRequest triggers distillation of one trace
type DistillRequest struct {
	TraceID   string `json:"trace_id"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// Distill compresses a trace's log history into a wisdom card
// POST /api/v1/wisdom/distill
func (h *WisdomHandler) Distill(c *fiber.Ctx) error {
	var req DistillRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	item, err := h.distiller.Distill(c.Context(), req.TraceID, req.Overwrite)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyTraceID):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "trace_id is required",
			})
		case errors.Is(err, services.ErrTraceNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No log events found for trace",
			})
		case errors.Is(err, services.ErrNoSummarizer):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "No summarizer configured",
			})
		default:
			log.Printf("❌ [WISDOM] Distillation failed for trace %s: %v", req.TraceID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Distillation failed",
			})
		}
	}

	return c.JSON(item)
}

// List returns the newest wisdom cards
// GET /api/v1/wisdom?limit=20
func (h *WisdomHandler) List(c *fiber.Ctx) error {
	items, err := h.wisdom.ListRecent(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		log.Printf("❌ [WISDOM] Failed to list wisdom: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve wisdom items",
		})
	}

	if items == nil {
		items = []models.WisdomItem{}
	}
	return c.JSON(items)
}

// Search performs a keyword search over titles, tags, and content
// GET /api/v1/wisdom/search?q=timeout&limit=20
func (h *WisdomHandler) Search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q", ""))
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query parameter 'q' is required",
		})
	}

	items, err := h.wisdom.Search(c.Context(), query, c.QueryInt("limit", 20))
	if err != nil {
		log.Printf("❌ [WISDOM] Search failed for %q: %v", query, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	if items == nil {
		items = []models.WisdomItem{}
	}
	return c.JSON(items)
}

// ByTrace returns the card distilled from one trace
// GET /api/v1/wisdom/trace/:trace_id
func (h *WisdomHandler) ByTrace(c *fiber.Ctx) error {
	traceID := c.Params("trace_id")

	item, err := h.wisdom.FindByTrace(c.Context(), traceID)
	if err != nil {
		log.Printf("❌ [WISDOM] Lookup failed for trace %s: %v", traceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve wisdom item",
		})
	}
	if item == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No wisdom card exists for trace",
		})
	}

	return c.JSON(item)
}

// WisdomCreateRequest creates a manual card not tied to any trace
type WisdomCreateRequest struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Create stores a hand-written wisdom card (runbook notes, operator knowledge)
// POST /api/v1/wisdom
func (h *WisdomHandler) Create(c *fiber.Ctx) error {
	var req WisdomCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both title and content are required",
		})
	}
	if req.Confidence < 0 {
		req.Confidence = 0
	}
	if req.Confidence > 1 {
		req.Confidence = 1
	}
	if req.Confidence == 0 {
		req.Confidence = 1.0 // operator-authored cards are trusted
	}

	item, err := h.wisdom.Insert(c.Context(), &models.WisdomItem{
		Title:      services.RedactSecrets(req.Title),
		Content:    services.RedactSecrets(req.Content),
		Tags:       normalizeTags(req.Tags),
		Confidence: req.Confidence,
	})
	if err != nil {
		log.Printf("❌ [WISDOM] Failed to create manual card: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create wisdom item",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(item)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || strings.Contains(tag, ",") {
			continue
		}
		out = append(out, tag)
		if len(out) >= 10 {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
