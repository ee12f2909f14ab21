package handler

import (
	"checkin/backend/internal/chathub"
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HistoryReader is the read side used by GET /messages.
type HistoryReader interface {
	Backfill(ctx context.Context, room string, limit int) ([]models.ChatMessage, error)
}

// UploadOptions configures attachment uploads.
type UploadOptions struct {
	Dir      string
	MaxBytes int64
}

// Handler містить посилання на ChatHub та сховище
type Handler struct {
	Hub         *chathub.ManagerService
	Storage     storage.Storage
	History     HistoryReader
	DefaultRoom string
	Uploads     UploadOptions
}

func NewHandler(hub *chathub.ManagerService, store storage.Storage, hist HistoryReader, uploads UploadOptions) *Handler {
	return &Handler{
		Hub:         hub,
		Storage:     store,
		History:     hist,
		DefaultRoom: hub.DefaultRoom(),
		Uploads:     uploads,
	}
}

// RegisterRoutes mounts the realtime endpoint and the REST API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/messages", h.GetMessages)
	r.GET("/rooms", h.ListRooms)
	r.POST("/uploads", h.UploadAttachment)
	r.Static("/uploads", h.Uploads.Dir)
	r.GET("/healthz", h.Health)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
