package domain

import "time"

// DraftStatus is the lifecycle state of a drafted response.
type DraftStatus string

const (
	DraftPending        DraftStatus = "pending"
	DraftApproved       DraftStatus = "approved"
	DraftApprovedEdited DraftStatus = "approved_edited"
	DraftRejected       DraftStatus = "rejected"
	DraftEscalated      DraftStatus = "escalated"
	DraftExpired        DraftStatus = "expired"
)

// IsTerminal reports whether the status admits no further transitions.
func (s DraftStatus) IsTerminal() bool {
	return s != DraftPending
}

// Draft is a generated response awaiting human approval. A draft is never
// silently dropped: past ExpiresAt an unresolved draft transitions to
// expired, it does not disappear.
type Draft struct {
	DraftID      string      `json:"draft_id"`
	ReplyID      string      `json:"reply_id"`
	ThreadID     string      `json:"thread_id"`
	LeadID       string      `json:"lead_id"`
	ResponseText string      `json:"response_text"`
	TemplateID   string      `json:"template_id,omitempty"`
	MessageRef   string      `json:"message_ref,omitempty"` // notification channel reference
	Status       DraftStatus `json:"status"`

	Classification Classification `json:"classification"`

	EditedText string     `json:"edited_text,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the draft is pending past its deadline.
func (d *Draft) Expired(now time.Time) bool {
	return d.Status == DraftPending && !now.Before(d.ExpiresAt)
}
