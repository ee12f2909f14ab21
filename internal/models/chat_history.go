package models

import "time"

// ChatHistory represents a saved chat message in the database.
// Rows are append-only: the relay never updates or deletes them.
type ChatHistory struct {
	// ID is the auto-increment primary key and doubles as the public message ID.
	ID uint `gorm:"primaryKey"`
	// Room is the partition key. The composite index serves ordered backfill reads.
	Room string `gorm:"type:text;not null;index:idx_room_created,priority:1"`
	// Author is the display name supplied by the client. It is not verified.
	Author string `gorm:"type:text;not null"`
	// Body is the message text. It may be empty when Attachment is set.
	Body string `gorm:"type:text"`
	// Attachment is an opaque path or URL of a previously uploaded file.
	Attachment string `gorm:"type:text"`
	// CreatedAt is assigned at persistence time and is the ordering key.
	CreatedAt time.Time `gorm:"not null;index:idx_room_created,priority:2"`
}

// NewChatHistory builds a row from a message that is about to be persisted.
func NewChatHistory(msg *ChatMessage) ChatHistory {
	return ChatHistory{
		Room:       msg.Room,
		Author:     msg.Author,
		Body:       msg.Body,
		Attachment: msg.Attachment,
		CreatedAt:  msg.CreatedAt,
	}
}

// ToMessage converts a stored row back into its wire form.
func (h ChatHistory) ToMessage() ChatMessage {
	return ChatMessage{
		ID:         h.ID,
		Author:     h.Author,
		Body:       h.Body,
		Room:       h.Room,
		Attachment: h.Attachment,
		CreatedAt:  h.CreatedAt,
	}
}
