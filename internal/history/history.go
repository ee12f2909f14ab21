// Package history serves ordered room history to newly joined connections
// and to the REST API.
package history

import (
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// ErrRoomRequired is returned when Backfill is called without a room.
var ErrRoomRequired = errors.New("history: room is required")

// Service reads room history from a message store.
type Service struct {
	store storage.MessageStore
	group singleflight.Group
}

func NewService(store storage.MessageStore) *Service {
	return &Service{store: store}
}

// Backfill returns the messages of room ordered by createdAt ascending.
// A limit <= 0 returns everything; otherwise the newest limit messages are
// returned, still oldest first. A room without messages yields an empty,
// non-nil slice.
//
// Identical concurrent calls share one store read. The returned slice is a
// private copy for each caller.
func (s *Service) Backfill(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	if room == "" {
		return nil, ErrRoomRequired
	}
	if limit < 0 {
		limit = 0
	}

	key := room + "\x00" + strconv.Itoa(limit)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.store.GetChatHistory(ctx, room, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", room, err)
	}

	shared, _ := v.([]models.ChatMessage)
	msgs := make([]models.ChatMessage, len(shared))
	copy(msgs, shared)
	return msgs, nil
}
