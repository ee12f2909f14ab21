package models_test

import (
	"checkin/backend/internal/models"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_WireShape(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := models.NewEnvelope(models.EventMessageDelivered, models.ChatMessage{
		ID:        7,
		Author:    "alice",
		Body:      "hi",
		Room:      "general",
		CreatedAt: created,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "message_delivered", decoded["type"])

	payload := decoded["payload"].(map[string]any)
	for _, key := range []string{"id", "author", "body", "room", "attachment", "createdAt"} {
		assert.Contains(t, payload, key)
	}
	assert.Equal(t, "2026-03-01T12:00:00Z", payload["createdAt"])
}

func TestEnvelope_DecodeSendMessage(t *testing.T) {
	var env models.Envelope
	raw := `{"type":"send_message","payload":{"author":"bob","body":"","room":"other-room","attachment":"/uploads/a.png"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, models.EventSendMessage, env.Type)

	var p models.SendMessagePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "bob", p.Author)
	assert.Equal(t, "/uploads/a.png", p.Attachment)
	assert.True(t, p.ToMessage().HasContent())
}

func TestEnvelope_DecodeEmptyPayload(t *testing.T) {
	env := models.Envelope{Type: models.EventJoinRoom}
	var p models.JoinRoomPayload
	assert.Error(t, env.Decode(&p))
}

func TestChatMessage_HasContent(t *testing.T) {
	tests := []struct {
		name string
		msg  models.ChatMessage
		want bool
	}{
		{"body only", models.ChatMessage{Body: "hello"}, true},
		{"attachment only", models.ChatMessage{Attachment: "/uploads/x.jpg"}, true},
		{"both", models.ChatMessage{Body: "look", Attachment: "/uploads/x.jpg"}, true},
		{"neither", models.ChatMessage{}, false},
		{"whitespace body", models.ChatMessage{Body: "   \n"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.HasContent())
		})
	}
}

func TestChatHistory_RoundTrip(t *testing.T) {
	msg := models.ChatMessage{
		Author:     "carol",
		Body:       "suspicious van on Elm St",
		Room:       "elm-street",
		Attachment: "/uploads/van.jpg",
		CreatedAt:  time.Now().UTC(),
	}
	row := models.NewChatHistory(&msg)
	row.ID = 42

	back := row.ToMessage()
	assert.Equal(t, uint(42), back.ID)
	assert.Equal(t, msg.Author, back.Author)
	assert.Equal(t, msg.Body, back.Body)
	assert.Equal(t, msg.Room, back.Room)
	assert.Equal(t, msg.Attachment, back.Attachment)
	assert.True(t, msg.CreatedAt.Equal(back.CreatedAt))
}
