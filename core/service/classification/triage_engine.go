package classification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/llm"
	"triage_server/pkg/logger"
)

// =============================================================================
// Classification Engine
// =============================================================================

// Fallback values used when the external service returns nothing usable.
const (
	fallbackConfidence = 0.5
	autoReplyConfidence = 0.95
)

// IntentClassifier is the slice of the LLM client the engine needs.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, req *llm.IntentRequest) (*llm.IntentResult, error)
	Model() string
}

// Result is the engine output: the classification itself plus bookkeeping
// the pipeline records into the session ledger.
type Result struct {
	Classification domain.Classification

	AutoReply        bool // fast path hit, no model call
	FallbackUsed     bool // model unavailable or result failed validation
	Hint             domain.Intent
	HeuristicGroups  int
	WordCount        int
	ProcessingTimeMs int64
}

// Engine derives a Classification for every reply. Classify never returns
// an error: a failed or malformed model call degrades to the deterministic
// fallback classification instead.
type Engine struct {
	detector  *AutoReplyDetector
	heuristic *HeuristicMatcher
	llm       IntentClassifier
	log       *logger.Logger
}

// NewEngine creates a classification engine.
func NewEngine(llmClient IntentClassifier, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		detector:  NewAutoReplyDetector(),
		heuristic: NewHeuristicMatcher(),
		llm:       llmClient,
		log:       log,
	}
}

// Classify runs the two-stage classification over a reply event.
func (e *Engine) Classify(ctx context.Context, event *domain.ReplyEvent) *Result {
	start := time.Now()

	body := stripQuoted(event.Text)
	wc := wordCount(body)

	// Fast path: out-of-office and bounces skip the model entirely. They
	// must never be sent to a reviewer or the auto-responder.
	if intent, ok := e.detector.Detect(body); ok {
		c := domain.Classification{
			Intent:           intent,
			IntentConfidence: autoReplyConfidence,
			Sentiment:        0,
			Reasoning:        "matched auto-reply signature",
			ModelVersion:     "pattern",
			TokensUsed:       0,
		}
		c.Complexity = deriveComplexity(c.Sentiment, wc, c.IntentConfidence, 0, false)
		c.Urgency = deriveUrgency(c.Intent, c.Sentiment, c.Complexity)
		return &Result{
			Classification:   c,
			AutoReply:        true,
			WordCount:        wc,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		}
	}

	hint := e.heuristic.Match(body)

	res, err := e.llm.ClassifyIntent(ctx, &llm.IntentRequest{
		ReplyText:     body,
		HintIntent:    hint.Hint,
		LeadName:      event.LeadName,
		LeadCompany:   event.LeadCompany,
		LastTemplate:  event.LastTemplateID,
		ThreadContext: flattenHistory(event.History),
	})

	var c domain.Classification
	fallback := false
	if err != nil {
		// Timeouts and malformed output are handled identically: the
		// pipeline continues on the safe default, never on a raw error.
		fallback = true
		e.log.WithError(err).WithField("reply_id", event.ReplyID).
			Warn("classification service unavailable, using fallback")
		c = domain.Classification{
			Intent:           domain.IntentUnclear,
			IntentConfidence: fallbackConfidence,
			Sentiment:        0,
			Reasoning:        "classification service unavailable",
			ModelVersion:     e.llm.Model(),
		}
	} else {
		c = domain.Classification{
			Intent:           res.Intent,
			IntentConfidence: res.Confidence,
			Sentiment:        res.Sentiment,
			Reasoning:        res.Reasoning,
			ModelVersion:     res.Model,
			TokensUsed:       res.TokensUsed,
		}
	}

	c.Complexity = deriveComplexity(c.Sentiment, wc, c.IntentConfidence, hint.GroupCount, needsCustomAnswer(body))
	c.Urgency = deriveUrgency(c.Intent, c.Sentiment, c.Complexity)

	return &Result{
		Classification:   c,
		FallbackUsed:     fallback,
		Hint:             hint.Hint,
		HeuristicGroups:  hint.GroupCount,
		WordCount:        wc,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// deriveComplexity grades the reply. Complex takes precedence over simple
// when both condition sets hold.
func deriveComplexity(sentiment float64, wc int, confidence float64, heuristicGroups int, customAnswer bool) domain.Complexity {
	if sentiment < -0.5 || wc > 300 || confidence < 0.5 || heuristicGroups > 1 || customAnswer {
		return domain.ComplexityComplex
	}
	if sentiment >= -0.3 && wc < 100 && confidence >= 0.7 && heuristicGroups <= 1 {
		return domain.ComplexitySimple
	}
	return domain.ComplexityMedium
}

func deriveUrgency(intent domain.Intent, sentiment float64, complexity domain.Complexity) domain.Urgency {
	if intent == domain.IntentPositiveInterest || sentiment < -0.5 {
		return domain.UrgencyHigh
	}
	switch intent {
	case domain.IntentOutOfOffice, domain.IntentBounce, domain.IntentUnsubscribe:
		return domain.UrgencyLow
	case domain.IntentQuestion, domain.IntentObjection, domain.IntentReferral:
		return domain.UrgencyMedium
	}
	if complexity == domain.ComplexityComplex {
		return domain.UrgencyMedium
	}
	return domain.UrgencyLow
}

// flattenHistory renders conversation history for the model prompt.
func flattenHistory(history []domain.HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}
