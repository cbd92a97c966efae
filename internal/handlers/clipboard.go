package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/pkg/utils"
)

type ClipboardHandler struct {
	db *gorm.DB
}

func NewClipboardHandler(db *gorm.DB) *ClipboardHandler {
	return &ClipboardHandler{db: db}
}

type saveClipRequest struct {
	Text string `json:"text"`
}

type clipEntryResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Save appends a clipboard entry. Blank pushes are dropped silently so a
// client flushing an empty clipboard does not pollute the history.
func (h *ClipboardHandler) Save(c *fiber.Ctx) error {
	var req saveClipRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if strings.TrimSpace(req.Text) == "" {
		return utils.Success(c, fiber.Map{"saved": false})
	}

	entry := models.ClipEntry{Content: req.Text}
	if err := h.db.Create(&entry).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to save clipboard")
	}
	return utils.Success(c, fiber.Map{"saved": true, "id": entry.ID})
}

// List returns the visible history newest-first, plus the newest entry's text
// as the current clipboard value.
func (h *ClipboardHandler) List(c *fiber.Ctx) error {
	var entries []models.ClipEntry
	if err := h.db.Where("hidden = ?", false).Order("created_at DESC").Find(&entries).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to load clipboard")
	}

	history := make([]clipEntryResponse, 0, len(entries))
	for _, e := range entries {
		history = append(history, clipEntryResponse{
			ID:        e.ID.String(),
			Text:      e.Content,
			CreatedAt: e.CreatedAt,
		})
	}

	current := ""
	if len(history) > 0 {
		current = history[0].Text
	}
	return utils.Success(c, fiber.Map{
		"current": current,
		"history": history,
	})
}
