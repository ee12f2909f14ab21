package storage

import (
	"checkin/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BroadcastChannel is the Redis channel every relay instance publishes persisted messages to.
const BroadcastChannel = "checkin:chat:broadcast"

var errNoRedis = errors.New("redis is not configured")

// PublishMessage публікує збережене повідомлення в Redis Pub/Sub.
func (s *Service) PublishMessage(ctx context.Context, msg models.ChatMessage) error {
	if s.Redis == nil {
		return errNoRedis
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.Redis.Publish(ctx, BroadcastChannel, msgBytes).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// SubscribeToBroadcast subscribes to the shared broadcast channel.
// The caller owns the returned PubSub and must close it.
func (s *Service) SubscribeToBroadcast(ctx context.Context) (*redis.PubSub, error) {
	if s.Redis == nil {
		return nil, errNoRedis
	}
	pubsub := s.Redis.Subscribe(ctx, BroadcastChannel)
	// Receive blocks until the subscription is confirmed, so no publish is missed afterwards.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", BroadcastChannel, err)
	}
	return pubsub, nil
}
