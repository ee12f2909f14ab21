package models

import (
	"encoding/json"
	"fmt"
)

// EventType names a realtime protocol event.
type EventType string

const (
	// Client -> server
	EventJoinRoom    EventType = "join_room"
	EventSendMessage EventType = "send_message"

	// Server -> client
	EventMessageDelivered EventType = "message_delivered"
	EventRoomJoined       EventType = "room_joined"
	EventHistory          EventType = "history"
	EventHistoryFailed    EventType = "history_failed"
	EventSendFailed       EventType = "send_failed"
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: data}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinRoomPayload asks the server to move the connection to Room.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// RoomJoinedPayload confirms the room the connection is now in.
type RoomJoinedPayload struct {
	Room string `json:"room"`
}

// HistoryPayload carries a backfill, oldest message first.
type HistoryPayload struct {
	Room     string        `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

// HistoryFailedPayload tells the client the backfill could not be loaded.
type HistoryFailedPayload struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

// SendFailedPayload tells the sender its message was not persisted.
type SendFailedPayload struct {
	Reason  string             `json:"reason"`
	Message SendMessagePayload `json:"message"`
}
