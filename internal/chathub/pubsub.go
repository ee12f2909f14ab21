package chathub

import (
	"checkin/backend/internal/models"
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// BroadcastStore is the Redis side of cross-instance fan-out.
type BroadcastStore interface {
	PublishMessage(ctx context.Context, msg models.ChatMessage) error
	SubscribeToBroadcast(ctx context.Context) (*redis.PubSub, error)
}

// RedisBroadcaster publishes persisted messages to Redis so every relay
// instance, this one included, delivers them to its own connections.
type RedisBroadcaster struct {
	store BroadcastStore
}

func NewRedisBroadcaster(store BroadcastStore) *RedisBroadcaster {
	return &RedisBroadcaster{store: store}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, msg models.ChatMessage) error {
	return b.store.PublishMessage(ctx, msg)
}

// Subscribe returns once the subscription is confirmed. The returned channel
// is closed when ctx is done.
func (b *RedisBroadcaster) Subscribe(ctx context.Context) (<-chan models.ChatMessage, error) {
	pubsub, err := b.store.SubscribeToBroadcast(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan models.ChatMessage)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var chatMsg models.ChatMessage
				if err := json.Unmarshal([]byte(msg.Payload), &chatMsg); err != nil {
					log.Printf("Error unmarshalling Redis message: %v", err)
					continue
				}
				select {
				case out <- chatMsg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
