package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachment records a file uploaded ahead of a send_message event.
// The relay only ever sees Path, as an opaque string.
type Attachment struct {
	ID          string    `gorm:"primaryKey" json:"id"` // UUID
	FileName    string    `gorm:"type:text" json:"fileName"`
	ContentType string    `gorm:"type:text" json:"contentType"`
	Size        int64     `json:"size"`
	Path        string    `gorm:"type:text;uniqueIndex" json:"path"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BeforeCreate is a GORM hook invoked before the row is inserted.
// It generates a new UUID if the ID has not been set yet.
func (a *Attachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}
