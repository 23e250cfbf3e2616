package domain

// Intent is the closed set of reply intents the classifier can produce.
type Intent string

const (
	IntentPositiveInterest Intent = "positive_interest"
	IntentQuestion         Intent = "question"
	IntentObjection        Intent = "objection"
	IntentReferral         Intent = "referral"
	IntentUnsubscribe      Intent = "unsubscribe"
	IntentNotInterested    Intent = "not_interested"
	IntentOutOfOffice      Intent = "out_of_office"
	IntentBounce           Intent = "bounce"
	IntentUnclear          Intent = "unclear"
)

// ValidIntent reports whether s is a member of the intent enumeration.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentPositiveInterest, IntentQuestion, IntentObjection,
		IntentReferral, IntentUnsubscribe, IntentNotInterested,
		IntentOutOfOffice, IntentBounce, IntentUnclear:
		return true
	}
	return false
}

// Complexity grades how hard a reply is to answer from a template.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Urgency grades how fast a reply should be acted on.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Classification is produced once per reply by the classification engine
// and is immutable afterwards. It is embedded into routing decisions and
// drafts for audit.
type Classification struct {
	Intent           Intent     `json:"intent"`
	IntentConfidence float64    `json:"intent_confidence"` // [0,1]
	Sentiment        float64    `json:"sentiment"`         // [-1,1]
	Complexity       Complexity `json:"complexity"`
	Urgency          Urgency    `json:"urgency"`
	Reasoning        string     `json:"reasoning,omitempty"`
	ModelVersion     string     `json:"model_version,omitempty"`
	TokensUsed       int        `json:"tokens_used"`
}
