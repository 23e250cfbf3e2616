package classification

import (
	"regexp"

	"triage_server/core/domain"
)

// =============================================================================
// Heuristic Intent Matcher (hint only)
// =============================================================================

// intentRule is one ordered entry of the rule table. The first rule whose
// pattern matches supplies the hint intent; the total number of distinct
// intent groups that match feeds the complexity derivation.
type intentRule struct {
	intent  domain.Intent
	pattern *regexp.Regexp
}

var intentRules = []intentRule{
	// Unsubscribe outranks not_interested: "remove me" beats "not interested".
	{domain.IntentUnsubscribe, regexp.MustCompile(`(?i)\b(unsubscribe|remove me|take me off|stop (e-?mail|messag|contact)ing)\b`)},
	{domain.IntentUnsubscribe, regexp.MustCompile(`(?i)\b(opt me out|opt-?out|mailing list)\b`)},
	{domain.IntentReferral, regexp.MustCompile(`(?i)\b(right person|wrong person|forward(ed)? (this|your|it)|reach out to|you (should|want to) (talk|speak) to|cc'?d|copied)\b`)},
	{domain.IntentNotInterested, regexp.MustCompile(`(?i)\b(not interested|no interest|not a (good )?fit|no thanks?|we('re| are) (all )?set|pass on this)\b`)},
	{domain.IntentPositiveInterest, regexp.MustCompile(`(?i)\b(interested|sounds (good|great|interesting)|book (a )?(call|demo|meeting)|schedule|let'?s (talk|chat|connect)|send (me )?(more|pricing|details))\b`)},
	{domain.IntentObjection, regexp.MustCompile(`(?i)\b(too expensive|budget|already (use|have|working with)|under contract|bad timing|next (quarter|year)|not (right )?now)\b`)},
	{domain.IntentQuestion, regexp.MustCompile(`(?i)\b(how (much|does|do you)|what (is|are|does)|can (you|it)|does (it|this|your))\b`)},
	{domain.IntentQuestion, regexp.MustCompile(`\?`)},
}

// HeuristicResult is the advisory output of the rule table.
type HeuristicResult struct {
	Hint         domain.Intent // first matching rule's intent, or "" if none
	MatchedRules []domain.Intent
	GroupCount   int // number of distinct intents with at least one match
}

// HeuristicMatcher is the regex-rule pre-classifier. Its output is only a
// hint passed into the model prompt, never an authoritative answer.
type HeuristicMatcher struct{}

// NewHeuristicMatcher creates the matcher.
func NewHeuristicMatcher() *HeuristicMatcher {
	return &HeuristicMatcher{}
}

// Match runs the ordered rule table over the reply body.
func (m *HeuristicMatcher) Match(body string) *HeuristicResult {
	result := &HeuristicResult{}
	seen := make(map[domain.Intent]bool)

	for _, rule := range intentRules {
		if !rule.pattern.MatchString(body) {
			continue
		}
		if result.Hint == "" {
			result.Hint = rule.intent
		}
		if !seen[rule.intent] {
			seen[rule.intent] = true
			result.MatchedRules = append(result.MatchedRules, rule.intent)
		}
	}

	result.GroupCount = len(result.MatchedRules)
	return result
}
