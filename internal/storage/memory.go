package storage

import (
	"checkin/backend/internal/models"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs the server when
// no DATABASE_URL is configured and is used by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      uint
	last        time.Time
	rooms       map[string][]models.ChatMessage
	attachments map[string]models.Attachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:       make(map[string][]models.ChatMessage),
		attachments: make(map[string]models.Attachment),
	}
}

func (m *MemoryStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateMessage(msg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := persistenceTime()
	if now.Before(m.last) {
		now = m.last
	}
	m.last = now
	m.nextID++

	msg.ID = m.nextID
	msg.CreatedAt = now
	m.rooms[msg.Room] = append(m.rooms[msg.Room], *msg)
	return nil
}

func (m *MemoryStore) GetChatHistory(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if room == "" {
		return nil, ErrRoomRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.rooms[room]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]models.RoomSummary, 0, len(m.rooms))
	for room, msgs := range m.rooms {
		summaries = append(summaries, models.RoomSummary{
			Room:          room,
			MessageCount:  int64(len(msgs)),
			LastMessageAt: msgs[len(msgs)-1].CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastMessageAt.Equal(summaries[j].LastMessageAt) {
			return summaries[i].Room < summaries[j].Room
		}
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

func (m *MemoryStore) SaveAttachment(ctx context.Context, a *models.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.ID] = *a
	return nil
}
