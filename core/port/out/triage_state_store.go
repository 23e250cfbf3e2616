// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// =============================================================================
// Draft store
// =============================================================================

// DraftRepository persists drafts awaiting human approval.
//
// Lookups must resolve a draft by its own id, by the originating reply id,
// and by the notification-channel message ref, so that an out-of-band human
// action can be routed back to the correct draft.
type DraftRepository interface {
	Create(ctx context.Context, draft *domain.Draft) error
	Update(ctx context.Context, draft *domain.Draft) error

	GetByID(ctx context.Context, draftID string) (*domain.Draft, error)
	GetByReplyID(ctx context.Context, replyID string) (*domain.Draft, error)
	GetByMessageRef(ctx context.Context, messageRef string) (*domain.Draft, error)

	// GetOpenByThread returns the pending draft for a thread, or nil.
	GetOpenByThread(ctx context.Context, threadID string) (*domain.Draft, error)

	// ListPending returns pending drafts, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.Draft, error)

	// ListExpired returns pending drafts whose deadline has passed at `now`.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Draft, error)

	Delete(ctx context.Context, draftID string) error
}

// =============================================================================
// Session ledger
// =============================================================================

// ProcessedReplyRepository is the durable idempotency ledger.
type ProcessedReplyRepository interface {
	// Record inserts the marker. It must be safe under concurrent duplicate
	// deliveries: the second insert for the same reply id is a no-op that
	// returns domain data of the first.
	Record(ctx context.Context, p *domain.ProcessedReply, result *domain.ProcessingResult) error
	Get(ctx context.Context, replyID string) (*domain.ProcessedReply, *domain.ProcessingResult, error)
}

// ActiveThreadRepository tracks threads currently owned by the pipeline.
type ActiveThreadRepository interface {
	Upsert(ctx context.Context, t *domain.ActiveThread) error
	Get(ctx context.Context, threadID string) (*domain.ActiveThread, error)
	Remove(ctx context.Context, threadID string) error
	List(ctx context.Context, limit int) ([]*domain.ActiveThread, error)
}

// SessionErrorRepository is the append-only pipeline error log.
type SessionErrorRepository interface {
	Append(ctx context.Context, e *domain.SessionError) error
	ListByReply(ctx context.Context, replyID string) ([]*domain.SessionError, error)
}

// =============================================================================
// Reply archive
// =============================================================================

// ReplyArchive persists raw reply events and their conversation history
// for audit.
type ReplyArchive interface {
	Save(ctx context.Context, event *domain.ReplyEvent) error
	Get(ctx context.Context, replyID string) (*domain.ReplyEvent, error)
}
