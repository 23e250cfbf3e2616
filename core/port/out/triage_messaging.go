package out

import (
	"context"

	"triage_server/core/domain"
)

// MessageProducer enqueues reply events for asynchronous processing by the
// worker. The webhook handler acknowledges the upstream delivery as soon as
// the event is durably queued.
type MessageProducer interface {
	PublishReplyEvent(ctx context.Context, event *domain.ReplyEvent) (jobID string, err error)
}

// ResultCache is the short-lived idempotency cache in front of the durable
// ledger. PutNX must be an atomic check-and-create.
type ResultCache interface {
	PutNX(ctx context.Context, replyID string) (created bool, err error)
	StoreResult(ctx context.Context, replyID string, result *domain.ProcessingResult) error
	GetResult(ctx context.Context, replyID string) (*domain.ProcessingResult, error)
	Release(ctx context.Context, replyID string) error
}
