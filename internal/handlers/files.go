package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipsync/backend/internal/middleware"
	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/internal/storage"
	"github.com/clipsync/backend/pkg/logger"
	"github.com/clipsync/backend/pkg/utils"
)

const serveTokenTTL = 15 * time.Minute

type FileHandler struct {
	db        *gorm.DB
	blobs     storage.ObjectStore
	jwtSecret string
}

func NewFileHandler(db *gorm.DB, blobs storage.ObjectStore, jwtSecret string) *FileHandler {
	return &FileHandler{db: db, blobs: blobs, jwtSecret: jwtSecret}
}

type storedFileResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	SerialNumber *string   `json:"serialNumber,omitempty"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Upload stores a multipart file: bytes to object storage, metadata to the
// database. Re-uploading a name replaces the previous version.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "No file provided")
	}
	if fileHeader.Filename == "" {
		return utils.Error(c, fiber.StatusBadRequest, "File has no name")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Failed to read upload")
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Failed to read upload")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	file := models.StoredFile{
		Name:        fileHeader.Filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		ObjectKey:   uuid.NewString(),
	}
	file.Width, file.Height = sniffImageSize(data)
	file.SerialNumber = sniffSerialNumber(data)

	// Same name replaces the old upload, keeping its row id stable.
	var existing models.StoredFile
	err = h.db.Where("name = ?", file.Name).First(&existing).Error
	switch {
	case err == nil:
		oldKey := existing.ObjectKey
		existing.Size = file.Size
		existing.ContentType = file.ContentType
		existing.ObjectKey = file.ObjectKey
		existing.Width = file.Width
		existing.Height = file.Height
		existing.SerialNumber = file.SerialNumber
		existing.Hidden = false
		if err := h.db.Save(&existing).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "Failed to save file")
		}
		file = existing
		if err := h.blobs.Delete(c.Context(), oldKey); err != nil {
			logger.Warn("stale_object_delete_failed", map[string]interface{}{
				"key": oldKey,
			})
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := h.db.Create(&file).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "Failed to save file")
		}
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to save file")
	}

	if err := h.blobs.Put(c.Context(), file.ObjectKey, bytes.NewReader(data), file.Size, file.ContentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to store file")
	}

	logger.Info("file_uploaded", map[string]interface{}{
		"name": file.Name,
		"size": file.Size,
	})
	return utils.Success(c, h.fileResponse(&file))
}

// List returns metadata for all visible files, newest first.
func (h *FileHandler) List(c *fiber.Ctx) error {
	var files []models.StoredFile
	if err := h.db.Where("hidden = ?", false).Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to load files")
	}

	out := make([]storedFileResponse, 0, len(files))
	for i := range files {
		out = append(out, h.fileResponse(&files[i]))
	}
	return utils.Success(c, fiber.Map{"files": out})
}

// Content streams a file's bytes. Access is granted either by the session
// cookie or by a signed link token, so image tags and external apps can fetch
// without cookies.
func (h *FileHandler) Content(c *fiber.Ctx) error {
	fileID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid file id")
	}

	if !middleware.Authenticated(c) {
		token := c.Query("token")
		if token == "" {
			return utils.Error(c, fiber.StatusUnauthorized, "Not authenticated")
		}
		grantedID, err := utils.ParseServeToken(h.jwtSecret, token)
		if err != nil || grantedID != fileID {
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid link token")
		}
	}

	var file models.StoredFile
	if err := h.db.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "File not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to load file")
	}

	obj, err := h.blobs.Get(c.Context(), file.ObjectKey)
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "File content missing")
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(file.Size, 10))
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", file.Name))
	return c.SendStream(obj)
}

type hideRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Hide soft-deletes a clipboard entry or a file. Hidden rows stay in the
// database but drop out of every listing.
func (h *FileHandler) Hide(c *fiber.Ctx) error {
	var req hideRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid id")
	}

	var result *gorm.DB
	switch req.Type {
	case "clipboard":
		result = h.db.Model(&models.ClipEntry{}).Where("id = ?", id).Update("hidden", true)
	case "file":
		result = h.db.Model(&models.StoredFile{}).Where("id = ?", id).Update("hidden", true)
	default:
		return utils.Error(c, fiber.StatusBadRequest, "Unknown item type")
	}
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to hide item")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "Item not found")
	}
	return utils.Success(c, fiber.Map{"hidden": true})
}

func (h *FileHandler) fileResponse(file *models.StoredFile) storedFileResponse {
	url := fmt.Sprintf("/api/files/%s/content", file.ID)
	if token, err := utils.GenerateServeToken(h.jwtSecret, file.ID, serveTokenTTL); err == nil {
		url += "?token=" + token
	}
	return storedFileResponse{
		ID:           file.ID.String(),
		Name:         file.Name,
		Size:         file.Size,
		ContentType:  file.ContentType,
		Width:        file.Width,
		Height:       file.Height,
		SerialNumber: file.SerialNumber,
		URL:          url,
		CreatedAt:    file.CreatedAt,
	}
}
