package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

// ErrNoUsableResult is returned when the service produced no parseable
// structured result or the result failed schema validation. Callers must
// treat it the same as a transport failure.
var ErrNoUsableResult = fmt.Errorf("llm: no usable structured result")

// =============================================================================
// Intent classification (full scheme)
// =============================================================================

// IntentRequest carries the reply plus optional context into the intent call.
type IntentRequest struct {
	ReplyText   string
	HintIntent  domain.Intent // heuristic hint, advisory only
	LeadName    string
	LeadCompany string
	LastTemplate string
	ThreadContext string
}

// IntentResult is the validated structured output of the intent call.
type IntentResult struct {
	Intent     domain.Intent
	Confidence float64
	Sentiment  float64
	Reasoning  string
	TokensUsed int
	Model      string
}

const intentSystemPrompt = `You are a sales reply classification service. Analyze the inbound reply and respond with JSON only.

Intents (pick ONE):
- positive_interest: wants to learn more, book a call, asks for pricing with buying intent
- question: asks a question without clear buying intent
- objection: pushes back on price, timing, fit, or trust
- referral: points to a different person or team
- unsubscribe: asks to stop receiving messages
- not_interested: declines without asking to be removed
- out_of_office: automatic out-of-office reply
- bounce: delivery failure notification
- unclear: none of the above fits

Respond with this exact JSON format:
{
  "intent": "intent_name",
  "confidence": 0.0-1.0,
  "sentiment": -1.0-1.0,
  "reasoning": "one or two sentences"
}`

// ClassifyIntent calls the external classifier with the intent schema and
// validates the result. Any transport failure, timeout, or schema violation
// comes back as an error; the caller applies the fallback classification.
func (c *Client) ClassifyIntent(ctx context.Context, req *IntentRequest) (*IntentResult, error) {
	userPrompt := buildIntentPrompt(req)

	content, tokens, err := c.completeJSON(ctx, intentSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Sentiment  float64 `json:"sentiment"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, ErrNoUsableResult
	}
	if !domain.ValidIntent(raw.Intent) {
		return nil, ErrNoUsableResult
	}
	if raw.Confidence < 0 || raw.Confidence > 1 || raw.Sentiment < -1 || raw.Sentiment > 1 {
		return nil, ErrNoUsableResult
	}

	return &IntentResult{
		Intent:     domain.Intent(raw.Intent),
		Confidence: raw.Confidence,
		Sentiment:  raw.Sentiment,
		Reasoning:  raw.Reasoning,
		TokensUsed: tokens,
		Model:      c.model,
	}, nil
}

func buildIntentPrompt(req *IntentRequest) string {
	var b strings.Builder

	if req.LeadName != "" || req.LeadCompany != "" {
		fmt.Fprintf(&b, "Lead: %s (%s)\n", req.LeadName, req.LeadCompany)
	}
	if req.LastTemplate != "" {
		fmt.Fprintf(&b, "Our last message used template: %s\n", req.LastTemplate)
	}
	if req.ThreadContext != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n", truncate(req.ThreadContext, 1500))
	}
	if req.HintIntent != "" {
		// Advisory signal from the rule-based pre-classifier; the model's own
		// answer is authoritative.
		fmt.Fprintf(&b, "A rule-based pre-filter suggests the intent may be %q. Verify independently.\n", req.HintIntent)
	}
	fmt.Fprintf(&b, "\nReply:\n%s", truncate(req.ReplyText, 2000))

	return b.String()
}

// =============================================================================
// Category classification (A/B/C scheme)
// =============================================================================

// CategoryResult is the validated structured output of the category call.
type CategoryResult struct {
	Category   domain.Category
	Confidence float64
	Reasoning  string
	Signals    []string
	TokensUsed int
	Model      string
}

const categorySystemPrompt = `You are a sales reply triage service. Assign the inbound reply to one category and respond with JSON only.

Categories:
- "A": interested, wants to continue the conversation
- "B": not interested, declines, unsubscribes, or is an automated reply
- "C": ambiguous, a human should review

Respond with this exact JSON format:
{
  "category": "A|B|C",
  "confidence": 0.0-1.0,
  "reasoning": "one or two sentences",
  "signals": ["short signal phrases found in the reply"]
}`

// ClassifyCategory calls the external classifier with the A/B/C schema.
func (c *Client) ClassifyCategory(ctx context.Context, replyText, threadContext string) (*CategoryResult, error) {
	var b strings.Builder
	if threadContext != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", truncate(threadContext, 1500))
	}
	fmt.Fprintf(&b, "Reply:\n%s", truncate(replyText, 2000))

	content, tokens, err := c.completeJSON(ctx, categorySystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var raw struct {
		Category   string   `json:"category"`
		Confidence float64  `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
		Signals    []string `json:"signals"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, ErrNoUsableResult
	}
	if !domain.ValidCategory(raw.Category) || raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, ErrNoUsableResult
	}

	return &CategoryResult{
		Category:   domain.Category(raw.Category),
		Confidence: raw.Confidence,
		Reasoning:  raw.Reasoning,
		Signals:    raw.Signals,
		TokensUsed: tokens,
		Model:      c.model,
	}, nil
}
