package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// streamJob mirrors the envelope written by the stream producer.
type streamJob struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// StreamBridge turns raw stream entries into pool jobs. It satisfies the
// consumer's JobHandler interface. A failed Submit leaves the entry
// unacknowledged so the pending reclaimer redelivers it.
type StreamBridge struct {
	pool *Pool
}

func NewStreamBridge(pool *Pool) *StreamBridge {
	return &StreamBridge{pool: pool}
}

func (b *StreamBridge) Handle(_ context.Context, stream string, data []byte) error {
	var job streamJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to unmarshal job from %s: %w", stream, err)
	}

	msg := &Message{
		ID:        job.ID,
		Type:      job.Type,
		Payload:   job.Payload,
		Priority:  PriorityNormal,
		CreatedAt: job.CreatedAt,
	}

	if !b.pool.Submit(msg) {
		return fmt.Errorf("pool rejected job %s", job.ID)
	}
	return nil
}
