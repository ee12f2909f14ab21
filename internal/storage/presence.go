package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// presenceKey returns the Redis set holding the connections online in room.
func presenceKey(room string) string {
	return "checkin:room:" + room + ":online"
}

// MarkJoined adds connID to the room's online set.
func (s *Service) MarkJoined(ctx context.Context, room, connID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.SAdd(ctx, presenceKey(room), connID).Err()
}

// MarkLeft removes connID from the room's online set.
func (s *Service) MarkLeft(ctx context.Context, room, connID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.SRem(ctx, presenceKey(room), connID).Err()
}

// OnlineCounts returns the number of online connections for each room.
// Rooms nobody is in are reported as zero.
func (s *Service) OnlineCounts(ctx context.Context, rooms []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(rooms))
	if s.Redis == nil || len(rooms) == 0 {
		return counts, nil
	}

	pipe := s.Redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(rooms))
	for i, room := range rooms {
		cmds[i] = pipe.SCard(ctx, presenceKey(room))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return counts, fmt.Errorf("presence pipeline: %w", err)
	}
	for i, room := range rooms {
		counts[room] = cmds[i].Val()
	}
	return counts, nil
}
