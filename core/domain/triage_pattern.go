package domain

import "time"

// PatternOutcome is the post-hoc result of a manually handled reply.
type PatternOutcome string

const (
	OutcomeConverted    PatternOutcome = "converted"
	OutcomeNotConverted PatternOutcome = "not_converted"
	OutcomeReferral     PatternOutcome = "referral"
	OutcomeNurture      PatternOutcome = "nurture"
)

// ValidOutcome reports whether s is a member of the outcome enumeration.
func ValidOutcome(s string) bool {
	switch PatternOutcome(s) {
	case OutcomeConverted, OutcomeNotConverted, OutcomeReferral, OutcomeNurture:
		return true
	}
	return false
}

// Pattern is a persisted ambiguous-reply case. Patterns form the
// similarity-search corpus for manual review and are never deleted; a
// pattern is mutated exactly once, when a human labels it.
type Pattern struct {
	PatternID string  `json:"pattern_id"`
	ReplyID   string  `json:"reply_id"`
	LeadID    string  `json:"lead_id"`
	BrainID   string  `json:"brain_id,omitempty"`
	Channel   Channel `json:"channel"`
	ReplyText string  `json:"reply_text"`
	History   string  `json:"history,omitempty"` // truncated conversation history

	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`

	// Set once by LabelPattern.
	Label         string         `json:"label,omitempty"`
	HandlingNotes string         `json:"handling_notes,omitempty"`
	Outcome       PatternOutcome `json:"outcome,omitempty"`
	HandledBy     string         `json:"handled_by,omitempty"`
	LabeledAt     *time.Time     `json:"labeled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Labeled reports whether a human has already closed the loop on this pattern.
func (p *Pattern) Labeled() bool {
	return p.LabeledAt != nil
}

// SimilarPattern is a similarity-search hit against the pattern corpus.
type SimilarPattern struct {
	Pattern Pattern `json:"pattern"`
	Score   float64 `json:"score"` // cosine similarity [0,1]
}
