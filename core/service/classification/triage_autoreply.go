// Package classification implements the two-stage reply classification
// engine: a rule-based pre-filter plus a structured external-model call.
package classification

import (
	"regexp"

	"triage_server/core/domain"
)

// =============================================================================
// Auto-Reply Detector (fast path)
// =============================================================================

// Replies matching these signatures must never reach a human reviewer or the
// auto-responder, and never cost a model call.

var oooPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bout of (the )?office\b`),
	regexp.MustCompile(`(?i)\bon (annual |parental |sick )?leave\b`),
	regexp.MustCompile(`(?i)\bcurrently (away|travell?ing|on vacation|on holiday)\b`),
	regexp.MustCompile(`(?i)\bautomatic reply\b`),
	regexp.MustCompile(`(?i)\bauto-?reply\b`),
	regexp.MustCompile(`(?i)\bi (will|am going to) (be )?(back|return)(ing)? (on|by)\b`),
	regexp.MustCompile(`(?i)\blimited access to (my )?e-?mail\b`),
	regexp.MustCompile(`(?i)\babwesenheitsnotiz\b`), // common DE auto-reply marker
}

var bouncePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdelivery (status notification|has failed|failure)\b`),
	regexp.MustCompile(`(?i)\bundeliverable\b`),
	regexp.MustCompile(`(?i)\bmail(er)?-?daemon\b`),
	regexp.MustCompile(`(?i)\baddress (not found|rejected|unknown)\b`),
	regexp.MustCompile(`(?i)\buser unknown\b`),
	regexp.MustCompile(`(?i)\bmailbox (is )?(full|unavailable|disabled)\b`),
	regexp.MustCompile(`(?i)\bmessage (was )?(blocked|could not be delivered)\b`),
	regexp.MustCompile(`(?i)\b55[0123] \d\.\d\.\d\b`), // SMTP permanent failure codes
}

// AutoReplyDetector flags out-of-office and bounce content before any model
// call.
type AutoReplyDetector struct{}

// NewAutoReplyDetector creates the detector. Patterns are package-level and
// compiled once.
func NewAutoReplyDetector() *AutoReplyDetector {
	return &AutoReplyDetector{}
}

// Detect returns the matched auto-reply intent (out_of_office or bounce) and
// true, or "" and false when the body is a genuine human reply.
func (d *AutoReplyDetector) Detect(body string) (domain.Intent, bool) {
	for _, p := range bouncePatterns {
		if p.MatchString(body) {
			return domain.IntentBounce, true
		}
	}
	for _, p := range oooPatterns {
		if p.MatchString(body) {
			return domain.IntentOutOfOffice, true
		}
	}
	return "", false
}
