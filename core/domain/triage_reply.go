// Package domain contains the core types of the reply triage pipeline.
package domain

import "time"

// Channel identifies where an inbound reply came from.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
)

// HistoryMessage is one turn of the conversation preceding the reply.
type HistoryMessage struct {
	Role    string `json:"role"` // "us" or "lead"
	Content string `json:"content"`
}

// ReplyEvent is the immutable input of the pipeline, created once per
// inbound webhook delivery and never mutated afterwards.
type ReplyEvent struct {
	ReplyID  string  `json:"reply_id"`
	ThreadID string  `json:"thread_id"`
	LeadID   string  `json:"lead_id"`
	BrainID  string  `json:"brain_id,omitempty"`
	Channel  Channel `json:"channel"`
	Text     string  `json:"text"`

	// Optional context
	LeadName       string           `json:"lead_name,omitempty"`
	LeadCompany    string           `json:"lead_company,omitempty"`
	DealValue      float64          `json:"deal_value,omitempty"`
	LastTemplateID string           `json:"last_template_id,omitempty"`
	History        []HistoryMessage `json:"history,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// HumanActionType is the kind of action a reviewer took on a draft or pattern.
type HumanActionType string

const (
	ActionApprove     HumanActionType = "approve"
	ActionApproveEdit HumanActionType = "approve_edit"
	ActionReject      HumanActionType = "reject"
	ActionEscalate    HumanActionType = "escalate"
)

// HumanAction is an inbound reviewer action delivered out of band by the
// notification channel. TargetID is a draft id or a notification message ref.
type HumanAction struct {
	Type       HumanActionType `json:"action_type"`
	TargetID   string          `json:"target_id"`
	ActorID    string          `json:"actor_id"`
	EditedText string          `json:"edited_text,omitempty"`
}
