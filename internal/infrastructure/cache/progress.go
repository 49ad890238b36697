package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/janhq/video-api/internal/domain/asset"
)

const progressTTL = 6 * time.Hour

// ProgressSnapshot is the latest progress reported for a running asset.
type ProgressSnapshot struct {
	Status    asset.Status `json:"status"`
	Progress  int          `json:"progress"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RedisProgressCache keeps per-asset progress in Redis so pollers do not hit the database.
type RedisProgressCache struct {
	redis *Redis
	ttl   time.Duration
}

func NewRedisProgressCache(r *Redis) *RedisProgressCache {
	return &RedisProgressCache{redis: r, ttl: progressTTL}
}

// Publish stores the snapshot. Terminal states expire quickly since the
// database row is authoritative once the run ends.
func (c *RedisProgressCache) Publish(ctx context.Context, assetID string, status asset.Status, progress int) error {
	raw, err := json.Marshal(ProgressSnapshot{Status: status, Progress: progress, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	ttl := c.ttl
	if status.IsTerminal() {
		ttl = time.Minute
	}
	if err := c.redis.client.Set(ctx, key("progress", assetID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

// Get returns the cached snapshot, or ok=false on a miss.
func (c *RedisProgressCache) Get(ctx context.Context, assetID string) (*ProgressSnapshot, bool, error) {
	val, err := c.redis.client.Get(ctx, key("progress", assetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get progress from cache: %w", err)
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &snap, true, nil
}
