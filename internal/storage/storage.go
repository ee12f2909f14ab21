package storage

import (
	"checkin/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrRoomRequired is returned when a read or write has no room.
	ErrRoomRequired = errors.New("room is required")
	// ErrEmptyMessage is returned when a message has neither body nor attachment.
	ErrEmptyMessage = errors.New("message has neither body nor attachment")
)

// MessageStore persists chat messages partitioned by room.
type MessageStore interface {
	// SaveMessage persists msg and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	// GetChatHistory returns the room's messages oldest first. With limit > 0
	// only the newest limit messages are returned.
	GetChatHistory(ctx context.Context, room string, limit int) ([]models.ChatMessage, error)
}

// Storage is the full persistence surface used by the HTTP API.
type Storage interface {
	MessageStore
	ListRooms(ctx context.Context) ([]models.RoomSummary, error)
	SaveAttachment(ctx context.Context, a *models.Attachment) error
}

// Presence tracks which connections are online in which room.
type Presence interface {
	MarkJoined(ctx context.Context, room, connID string) error
	MarkLeft(ctx context.Context, room, connID string) error
}

// Service is the Postgres + Redis implementation of Storage and Presence.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client // may be nil; presence and pub/sub are then disabled
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the tables the service needs.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ChatHistory{},
		&models.Attachment{},
	)
}

// validateMessage rejects messages that may not be persisted.
func validateMessage(msg *models.ChatMessage) error {
	if msg.Room == "" {
		return ErrRoomRequired
	}
	if !msg.HasContent() {
		return ErrEmptyMessage
	}
	return nil
}

// persistenceTime is the server clock at microsecond precision, which is what Postgres keeps.
func persistenceTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SaveMessage зберігає повідомлення та оновлює ID і CreatedAt у ChatMessage.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	msg.CreatedAt = persistenceTime()
	history := models.NewChatHistory(msg)

	if err := s.DB.WithContext(ctx).Create(&history).Error; err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	// ID призначається базою, копіюємо його назад для broadcast.
	msg.ID = history.ID
	msg.CreatedAt = history.CreatedAt
	return nil
}

// GetChatHistory отримує історію повідомлень для кімнати, від найстаріших.
func (s *Service) GetChatHistory(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	if room == "" {
		return nil, ErrRoomRequired
	}

	var rows []models.ChatHistory
	q := s.DB.WithContext(ctx).Where("room = ?", room)
	if limit > 0 {
		// Newest N, flipped back to ascending below.
		q = q.Order("created_at desc").Order("id desc").Limit(limit)
	} else {
		q = q.Order("created_at asc").Order("id asc")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get chat history: %w", err)
	}

	msgs := make([]models.ChatMessage, len(rows))
	for i, row := range rows {
		msgs[i] = row.ToMessage()
	}
	if limit > 0 {
		reverse(msgs)
	}
	return msgs, nil
}

type roomAggregate struct {
	Room         string
	MessageCount int64
	LastID       uint
}

// ListRooms returns a summary per room that has at least one message,
// most recently active first.
func (s *Service) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	var aggs []roomAggregate
	err := s.DB.WithContext(ctx).
		Model(&models.ChatHistory{}).
		Select("room, count(*) AS message_count, max(id) AS last_id").
		Group("room").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	summaries := make([]models.RoomSummary, 0, len(aggs))
	if len(aggs) == 0 {
		return summaries, nil
	}

	// Ids are assigned in persistence order, so max(id) is the newest message.
	lastIDs := make([]uint, len(aggs))
	for i, a := range aggs {
		lastIDs[i] = a.LastID
	}
	var last []models.ChatHistory
	if err := s.DB.WithContext(ctx).Where("id IN ?", lastIDs).Find(&last).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	lastAt := make(map[uint]time.Time, len(last))
	for _, row := range last {
		lastAt[row.ID] = row.CreatedAt
	}

	rooms := make([]string, len(aggs))
	for i, a := range aggs {
		rooms[i] = a.Room
		summaries = append(summaries, models.RoomSummary{
			Room:          a.Room,
			MessageCount:  a.MessageCount,
			LastMessageAt: lastAt[a.LastID],
		})
	}

	online, err := s.OnlineCounts(ctx, rooms)
	if err != nil {
		// Presence is advisory; the summary is still useful without it.
		log.Printf("WARNING: Failed to read presence: %v", err)
	}
	for i := range summaries {
		summaries[i].Online = online[summaries[i].Room]
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

// SaveAttachment records an uploaded file.
func (s *Service) SaveAttachment(ctx context.Context, a *models.Attachment) error {
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("save attachment: %w", err)
	}
	return nil
}

func reverse(msgs []models.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
