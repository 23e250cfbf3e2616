package domain

// Tier is one of the three routing outcomes of the tier scheme.
type Tier int

const (
	TierAutoRespond Tier = 1 // answered immediately
	TierDraft       Tier = 2 // drafted for human approval
	TierEscalate    Tier = 3 // escalated to a human
)

// TierDecision is the tier-scheme routing result for a classification.
type TierDecision struct {
	Tier            Tier   `json:"tier"`
	Reason          string `json:"reason"`
	OverrideApplied bool   `json:"override_applied"`
}

// Category is the A/B/C routing outcome: interested, not interested,
// manual review.
type Category string

const (
	CategoryInterested    Category = "A"
	CategoryNotInterested Category = "B"
	CategoryManualReview  Category = "C"
)

// ValidCategory reports whether s is A, B or C.
func ValidCategory(s string) bool {
	switch Category(s) {
	case CategoryInterested, CategoryNotInterested, CategoryManualReview:
		return true
	}
	return false
}

// CategoryDecision is the category-scheme routing result.
//
// EffectiveCategory is the category actually acted upon: it is always C
// when Confidence is below the configured floor, regardless of the raw
// category. That downgrade is a safety invariant, not a heuristic.
type CategoryDecision struct {
	Category          Category `json:"category"`
	EffectiveCategory Category `json:"effective_category"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning,omitempty"`
	Signals           []string `json:"signals,omitempty"`
	Downgraded        bool     `json:"downgraded"`
}
