// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// =============================================================================
// Processed Reply Ledger (idempotency)
// =============================================================================

// ProcessedReplyAdapter implements out.ProcessedReplyRepository on Postgres.
type ProcessedReplyAdapter struct {
	db *sqlx.DB
}

// NewProcessedReplyAdapter creates a new processed-reply adapter.
func NewProcessedReplyAdapter(db *sqlx.DB) *ProcessedReplyAdapter {
	return &ProcessedReplyAdapter{db: db}
}

type processedReplyRow struct {
	ReplyID     string         `db:"reply_id"`
	ThreadID    string         `db:"thread_id"`
	Tier        int            `db:"tier"`
	Action      string         `db:"action"`
	ProcessedAt time.Time      `db:"processed_at"`
	DurationMs  int64          `db:"duration_ms"`
	ErrorCodes  pq.StringArray `db:"error_codes"`
	Result      []byte         `db:"result"`
}

func (r *processedReplyRow) toMarker() *domain.ProcessedReply {
	return &domain.ProcessedReply{
		ReplyID:     r.ReplyID,
		ThreadID:    r.ThreadID,
		Tier:        domain.Tier(r.Tier),
		Action:      r.Action,
		ProcessedAt: r.ProcessedAt,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
	}
}

// Record inserts the idempotency marker and the serialized result. The
// insert is a no-op on conflict, so concurrent duplicate deliveries keep
// the first outcome.
func (a *ProcessedReplyAdapter) Record(ctx context.Context, p *domain.ProcessedReply, result *domain.ProcessingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	codes := make(pq.StringArray, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, e.Code)
	}

	query := `
		INSERT INTO processed_replies (reply_id, thread_id, tier, action, processed_at, duration_ms, error_codes, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reply_id) DO NOTHING`

	_, err = a.db.ExecContext(ctx, query,
		p.ReplyID, p.ThreadID, int(p.Tier), p.Action, p.ProcessedAt,
		p.Duration.Milliseconds(), codes, data)
	if err != nil {
		return fmt.Errorf("failed to record processed reply: %w", err)
	}
	return nil
}

// Get returns the marker and the stored result, or nils when unseen.
func (a *ProcessedReplyAdapter) Get(ctx context.Context, replyID string) (*domain.ProcessedReply, *domain.ProcessingResult, error) {
	var row processedReplyRow
	query := `SELECT * FROM processed_replies WHERE reply_id = $1`

	if err := a.db.GetContext(ctx, &row, query, replyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get processed reply: %w", err)
	}

	var result *domain.ProcessingResult
	if len(row.Result) > 0 {
		result = &domain.ProcessingResult{}
		if err := json.Unmarshal(row.Result, result); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return row.toMarker(), result, nil
}

var _ out.ProcessedReplyRepository = (*ProcessedReplyAdapter)(nil)

// =============================================================================
// Active Thread Adapter
// =============================================================================

// ActiveThreadAdapter implements out.ActiveThreadRepository on Postgres.
type ActiveThreadAdapter struct {
	db *sqlx.DB
}

// NewActiveThreadAdapter creates a new active-thread adapter.
func NewActiveThreadAdapter(db *sqlx.DB) *ActiveThreadAdapter {
	return &ActiveThreadAdapter{db: db}
}

type activeThreadRow struct {
	ThreadID  string         `db:"thread_id"`
	LeadID    string         `db:"lead_id"`
	Status    string         `db:"status"`
	DraftID   sql.NullString `db:"draft_id"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *activeThreadRow) toEntity() *domain.ActiveThread {
	t := &domain.ActiveThread{
		ThreadID:  r.ThreadID,
		LeadID:    r.LeadID,
		Status:    domain.ThreadStatus(r.Status),
		UpdatedAt: r.UpdatedAt,
	}
	if r.DraftID.Valid {
		t.DraftID = r.DraftID.String
	}
	return t
}

// Upsert inserts or replaces the thread state.
func (a *ActiveThreadAdapter) Upsert(ctx context.Context, t *domain.ActiveThread) error {
	query := `
		INSERT INTO active_threads (thread_id, lead_id, status, draft_id, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (thread_id) DO UPDATE SET
			lead_id = EXCLUDED.lead_id,
			status = EXCLUDED.status,
			draft_id = EXCLUDED.draft_id,
			updated_at = EXCLUDED.updated_at`

	_, err := a.db.ExecContext(ctx, query, t.ThreadID, t.LeadID, string(t.Status), t.DraftID, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert active thread: %w", err)
	}
	return nil
}

// Get retrieves a thread by id, or nil when absent.
func (a *ActiveThreadAdapter) Get(ctx context.Context, threadID string) (*domain.ActiveThread, error) {
	var row activeThreadRow
	query := `SELECT * FROM active_threads WHERE thread_id = $1`

	if err := a.db.GetContext(ctx, &row, query, threadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active thread: %w", err)
	}
	return row.toEntity(), nil
}

// Remove deletes a thread entry. Removing an absent thread is a no-op.
func (a *ActiveThreadAdapter) Remove(ctx context.Context, threadID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM active_threads WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("failed to remove active thread: %w", err)
	}
	return nil
}

// List returns active threads, most recently updated first.
func (a *ActiveThreadAdapter) List(ctx context.Context, limit int) ([]*domain.ActiveThread, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []activeThreadRow
	query := `SELECT * FROM active_threads ORDER BY updated_at DESC LIMIT $1`

	if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list active threads: %w", err)
	}

	threads := make([]*domain.ActiveThread, len(rows))
	for i, row := range rows {
		threads[i] = row.toEntity()
	}
	return threads, nil
}

var _ out.ActiveThreadRepository = (*ActiveThreadAdapter)(nil)

// =============================================================================
// Session Error Adapter
// =============================================================================

// SessionErrorAdapter implements out.SessionErrorRepository on Postgres.
// The log is append-only.
type SessionErrorAdapter struct {
	db *sqlx.DB
}

// NewSessionErrorAdapter creates a new session-error adapter.
func NewSessionErrorAdapter(db *sqlx.DB) *SessionErrorAdapter {
	return &SessionErrorAdapter{db: db}
}

type sessionErrorRow struct {
	ID         int64     `db:"id"`
	ReplyID    string    `db:"reply_id"`
	ErrorCode  string    `db:"error_code"`
	Message    string    `db:"message"`
	OccurredAt time.Time `db:"occurred_at"`
	Recovered  bool      `db:"recovered"`
}

// Append inserts one error entry.
func (a *SessionErrorAdapter) Append(ctx context.Context, e *domain.SessionError) error {
	query := `
		INSERT INTO session_errors (reply_id, error_code, message, occurred_at, recovered)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := a.db.ExecContext(ctx, query, e.ReplyID, e.ErrorCode, e.Message, e.OccurredAt, e.Recovered)
	if err != nil {
		return fmt.Errorf("failed to append session error: %w", err)
	}
	return nil
}

// ListByReply returns the error entries for one reply, oldest first.
func (a *SessionErrorAdapter) ListByReply(ctx context.Context, replyID string) ([]*domain.SessionError, error) {
	var rows []sessionErrorRow
	query := `SELECT * FROM session_errors WHERE reply_id = $1 ORDER BY occurred_at`

	if err := a.db.SelectContext(ctx, &rows, query, replyID); err != nil {
		return nil, fmt.Errorf("failed to list session errors: %w", err)
	}

	entries := make([]*domain.SessionError, len(rows))
	for i, row := range rows {
		entries[i] = &domain.SessionError{
			ReplyID:    row.ReplyID,
			ErrorCode:  row.ErrorCode,
			Message:    row.Message,
			OccurredAt: row.OccurredAt,
			Recovered:  row.Recovered,
		}
	}
	return entries, nil
}

var _ out.SessionErrorRepository = (*SessionErrorAdapter)(nil)
