package models

import "time"

// RoomSummary is a read model derived from stored messages and presence.
// Rooms are not stored entities; a room exists once something references it.
type RoomSummary struct {
	// Room is the partition key shared by messages and connections.
	Room string `json:"room"`
	// MessageCount is the number of persisted messages in the room.
	MessageCount int64 `json:"messageCount"`
	// LastMessageAt is the CreatedAt of the newest message.
	LastMessageAt time.Time `json:"lastMessageAt"`
	// Online is the number of live connections currently joined to the room.
	Online int64 `json:"online"`
}
