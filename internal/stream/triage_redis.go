// Package stream provides the Redis Streams primitives shared by the
// producer, the consumer and the ops queue-depth probe.
package stream

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

// Stream names.
const (
	StreamReplyEvents = "reply:events"

	// DLQPrefix is prepended to a stream name when a message exhausts
	// its redeliveries.
	DLQPrefix = "dlq:"
)

// RedisStream wraps a Redis client with a fixed consumer group.
type RedisStream struct {
	client *redis.Client
	group  string
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
	}
}

func (s *RedisStream) Group() string {
	return s.group
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// Publish appends a JSON-encoded entry and returns its stream id.
func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(jsonData)},
	}).Result()
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

// Pending reports how many delivered entries are still unacknowledged.
func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return info.Count, nil
}

// Depth reports the total number of entries currently in the stream.
func (s *RedisStream) Depth(ctx context.Context, stream string) (int64, error) {
	n, err := s.client.XLen(ctx, stream).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	return n, nil
}
