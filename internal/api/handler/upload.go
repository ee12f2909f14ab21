package handler

import (
	"checkin/backend/internal/models"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxStoredNameLen = 100

// UploadAttachment handles POST /uploads (multipart field "file"). The
// returned path is what clients put into a message's attachment field.
func (h *Handler) UploadAttachment(c *gin.Context) {
	limit := h.Uploads.MaxBytes
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided", "details": err.Error()})
		return
	}

	if err := os.MkdirAll(h.Uploads.Dir, 0o755); err != nil {
		log.Printf("ERROR: Failed to create upload dir %s: %v", h.Uploads.Dir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	name := uuid.New().String() + "-" + storedName(header.Filename)
	dst := filepath.Join(h.Uploads.Dir, name)
	if err := c.SaveUploadedFile(header, dst); err != nil {
		log.Printf("ERROR: Failed to save upload %s: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(dst); err == nil {
		contentType = mt.String()
	}

	attachment := models.Attachment{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Path:        "/uploads/" + name,
	}
	if err := h.Storage.SaveAttachment(c.Request.Context(), &attachment); err != nil {
		log.Printf("ERROR: Failed to record upload %s: %v", attachment.Path, err)
		os.Remove(dst)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record file"})
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

// storedName reduces a client supplied file name to a safe path element.
func storedName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	if s == "" {
		s = "file"
	}
	if len(s) > maxStoredNameLen {
		s = s[len(s)-maxStoredNameLen:]
	}
	return s
}
