// Package rediscache implements the Redis-backed idempotency cache.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
)

const (
	// markerValue is stored by PutNX before processing completes. A reply
	// whose key holds this value is in flight, not yet resolved.
	markerValue = "processing"

	keyPrefix = "reply:result:"
)

// ResultCache is the Redis implementation of the idempotency cache sitting
// in front of the Postgres ledger. Keys expire so a crashed worker never
// blocks a reply forever; the ledger stays authoritative.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache creates a result cache. ttl bounds how long an in-flight
// marker or cached result survives.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{client: client, ttl: ttl}
}

func (c *ResultCache) key(replyID string) string {
	return keyPrefix + replyID
}

// PutNX atomically claims a reply ID. It returns false when another worker
// already claimed or completed the reply.
func (c *ResultCache) PutNX(ctx context.Context, replyID string) (bool, error) {
	created, err := c.client.SetNX(ctx, c.key(replyID), markerValue, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", replyID, err)
	}
	return created, nil
}

// StoreResult replaces the in-flight marker with the final processing result.
func (c *ResultCache) StoreResult(ctx context.Context, replyID string, result *domain.ProcessingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", replyID, err)
	}
	if err := c.client.Set(ctx, c.key(replyID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store result %s: %w", replyID, err)
	}
	return nil
}

// GetResult returns the cached result for a reply, or nil when the key is
// absent or still holds the in-flight marker.
func (c *ResultCache) GetResult(ctx context.Context, replyID string) (*domain.ProcessingResult, error) {
	data, err := c.client.Get(ctx, c.key(replyID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", replyID, err)
	}
	if data == markerValue {
		return nil, nil
	}

	var result domain.ProcessingResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result %s: %w", replyID, err)
	}
	return &result, nil
}

// Release drops the claim for a reply so it can be retried. Used when
// processing fails before any durable side effect was recorded.
func (c *ResultCache) Release(ctx context.Context, replyID string) error {
	return c.client.Del(ctx, c.key(replyID)).Err()
}
