package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizwhiz-service/internal/domain"
)

// SnapshotCache keeps the latest snapshot of every session in Redis so
// state can be read without reaching the owning instance.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Publish stores snap as the session's latest state.
func (c *SnapshotCache) Publish(ctx context.Context, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(snap.QuizID), raw, c.ttl).Err()
}

// Latest returns the last stored snapshot for quizID.
func (c *SnapshotCache) Latest(ctx context.Context, quizID string) (domain.Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey(quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, quizID)
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func snapshotKey(quizID string) string {
	return "quiz:" + quizID + ":snapshot"
}
