package domain

import "time"

// ThreadStatus tracks where an active thread is in the pipeline.
type ThreadStatus string

const (
	ThreadProcessing      ThreadStatus = "processing"
	ThreadPendingApproval ThreadStatus = "pending_approval"
	ThreadEscalated       ThreadStatus = "escalated"
)

// ActiveThread marks a thread currently owned by the pipeline. Removed when
// processing of the thread completes.
type ActiveThread struct {
	ThreadID  string       `json:"thread_id"`
	LeadID    string       `json:"lead_id"`
	Status    ThreadStatus `json:"status"`
	DraftID   string       `json:"draft_id,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ProcessedReply is the idempotency marker for a reply. A second webhook
// delivery of the same reply id returns the recorded outcome instead of
// re-running the pipeline.
type ProcessedReply struct {
	ReplyID     string        `json:"reply_id"`
	ThreadID    string        `json:"thread_id"`
	Tier        Tier          `json:"tier"`
	Action      string        `json:"action"`
	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}

// Error codes recorded in the session ledger.
const (
	ErrCodeClassification = "CLASSIFICATION_UNAVAILABLE"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeNotification   = "NOTIFICATION_ERROR"
	ErrCodeCRM            = "CRM_ERROR"
	ErrCodeSearch         = "SEARCH_ERROR"
)

// SessionError is one append-only entry of the pipeline error log.
type SessionError struct {
	ReplyID    string    `json:"reply_id"`
	ErrorCode  string    `json:"error_code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	Recovered  bool      `json:"recovered"`
}

// ProcessingError is an error surfaced to the webhook caller as part of a
// partial-failure result.
type ProcessingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProcessingResult is the structured outcome returned for every handled
// reply. Success with a non-empty Errors list means partial failure.
type ProcessingResult struct {
	ReplyID   string            `json:"reply_id"`
	Duplicate bool              `json:"duplicate"`
	Success   bool              `json:"success"`
	Action    string            `json:"action"`
	Tier      Tier              `json:"tier,omitempty"`
	Category  Category          `json:"effective_category,omitempty"`
	DraftID   string            `json:"draft_id,omitempty"`
	PatternID string            `json:"pattern_id,omitempty"`
	Errors    []ProcessingError `json:"errors,omitempty"`

	Classification *Classification `json:"classification,omitempty"`
}

// ActionResult is the outcome of a human action on a draft.
type ActionResult struct {
	Success bool        `json:"success"`
	DraftID string      `json:"draft_id,omitempty"`
	Status  DraftStatus `json:"status,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}
