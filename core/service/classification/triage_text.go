package classification

import (
	"regexp"
	"strings"
)

// =============================================================================
// Reply body isolation
// =============================================================================

var quoteMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*On .{5,200} wrote:\s*$`),
	regexp.MustCompile(`(?im)^\s*-{2,}\s*Original Message\s*-{2,}`),
	regexp.MustCompile(`(?im)^\s*-{2,}\s*Forwarded message\s*-{2,}`),
	regexp.MustCompile(`(?im)^\s*From:\s.+$`),
	regexp.MustCompile(`(?im)^\s*Sent from my `),
	regexp.MustCompile(`(?im)^\s*_{10,}\s*$`),
}

// stripQuoted isolates the new reply body by cutting everything from the
// first quoted/forwarded-content marker onward and dropping ">"-prefixed
// lines before it.
func stripQuoted(text string) string {
	cut := len(text)
	for _, marker := range quoteMarkers {
		if loc := marker.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	body := text[:cut]

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// customAnswerPatterns indicate a request that cannot be answered from a
// template (security reviews, legal terms, bespoke integrations, ...).
var customAnswerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(security (review|questionnaire)|compliance|gdpr|soc ?2|hipaa)\b`),
	regexp.MustCompile(`(?i)\b(legal|contract|custom (terms|agreement)|procurement|rfp|rfi)\b`),
	regexp.MustCompile(`(?i)\b(custom integration|on-?prem(ise)?|self-?host|api limits?)\b`),
	regexp.MustCompile(`(?i)\b(specific(ally)? (to|for) (us|our)|our (exact )?(setup|stack|environment))\b`),
}

func needsCustomAnswer(body string) bool {
	for _, p := range customAnswerPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}
