package models

import (
	"strings"
	"time"
)

// ChatMessage is the persisted, broadcastable form of a chat message.
// ID and CreatedAt are zero until the store assigns them.
type ChatMessage struct {
	ID         uint      `json:"id"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	Room       string    `json:"room"`
	Attachment string    `json:"attachment"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasContent reports whether the message carries a body or an attachment.
func (m ChatMessage) HasContent() bool {
	return strings.TrimSpace(m.Body) != "" || strings.TrimSpace(m.Attachment) != ""
}

// SendMessagePayload is what a client submits with a send_message event.
type SendMessagePayload struct {
	Author     string `json:"author"`
	Body       string `json:"body"`
	Room       string `json:"room"`
	Attachment string `json:"attachment,omitempty"`
}

// ToMessage builds the not-yet-persisted message for this payload.
func (p SendMessagePayload) ToMessage() ChatMessage {
	return ChatMessage{
		Author:     p.Author,
		Body:       p.Body,
		Room:       p.Room,
		Attachment: p.Attachment,
	}
}
