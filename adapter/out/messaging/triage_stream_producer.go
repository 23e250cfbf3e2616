// Package messaging provides the Redis Streams queue adapters.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/internal/stream"
)

// Job is the stream envelope wrapping a queued payload.
type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Job types carried on the reply stream.
const (
	JobReplyProcess = "reply.process"
)

// StreamProducer implements out.MessageProducer on Redis Streams.
type StreamProducer struct {
	stream *stream.RedisStream
}

// NewStreamProducer creates a stream producer.
func NewStreamProducer(s *stream.RedisStream) *StreamProducer {
	return &StreamProducer{stream: s}
}

// PublishReplyEvent durably queues a reply event and returns the job id.
// The webhook handler acknowledges the upstream delivery only after this
// succeeds.
func (p *StreamProducer) PublishReplyEvent(ctx context.Context, event *domain.ReplyEvent) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: JobReplyProcess,
		Payload: map[string]any{
			"event": event,
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := p.stream.Publish(ctx, stream.StreamReplyEvents, job); err != nil {
		return "", fmt.Errorf("failed to publish reply event: %w", err)
	}
	return job.ID, nil
}

var _ out.MessageProducer = (*StreamProducer)(nil)
