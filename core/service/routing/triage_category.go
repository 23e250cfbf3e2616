package routing

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/llm"
	"triage_server/pkg/logger"
)

// =============================================================================
// Category scheme (A / B / C)
// =============================================================================

// CategoryClassifier is the slice of the LLM client the category router needs.
type CategoryClassifier interface {
	ClassifyCategory(ctx context.Context, replyText, threadContext string) (*llm.CategoryResult, error)
}

// CategoryRouter assigns replies to A (interested), B (not interested) or
// C (manual review).
type CategoryRouter struct {
	llm CategoryClassifier
	cfg *Config
	log *logger.Logger
}

// NewCategoryRouter creates a category router.
func NewCategoryRouter(llmClient CategoryClassifier, cfg *Config, log *logger.Logger) *CategoryRouter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &CategoryRouter{llm: llmClient, cfg: cfg, log: log}
}

// Decide returns the category decision for a reply.
//
// Auto-reply detections map directly to B at 0.95 and skip the model call.
// A failed or malformed model call degrades to C. In every case the
// confidence floor is applied unconditionally: no low-confidence decision
// may ever auto-execute an A or B outcome.
func (r *CategoryRouter) Decide(ctx context.Context, event *domain.ReplyEvent, threadContext string, autoReply bool) domain.CategoryDecision {
	if autoReply {
		return r.applyFloor(domain.CategoryDecision{
			Category:   domain.CategoryNotInterested,
			Confidence: 0.95,
			Reasoning:  "auto-reply detection",
			Signals:    []string{"auto_reply"},
		})
	}

	res, err := r.llm.ClassifyCategory(ctx, event.Text, threadContext)
	if err != nil {
		r.log.WithError(err).WithField("reply_id", event.ReplyID).
			Warn("category classifier unavailable, routing to manual review")
		return r.applyFloor(domain.CategoryDecision{
			Category:   domain.CategoryManualReview,
			Confidence: 0,
			Reasoning:  "category classifier unavailable",
			Signals:    []string{"classifier_unavailable"},
		})
	}

	return r.applyFloor(domain.CategoryDecision{
		Category:   res.Category,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		Signals:    res.Signals,
	})
}

// applyFloor sets EffectiveCategory. The downgrade below the confidence
// floor is the safety property of this engine and is never skipped.
func (r *CategoryRouter) applyFloor(d domain.CategoryDecision) domain.CategoryDecision {
	d.EffectiveCategory = d.Category
	if d.Confidence < r.cfg.ConfidenceFloor {
		d.EffectiveCategory = domain.CategoryManualReview
		d.Downgraded = d.Category != domain.CategoryManualReview
	}
	return d
}
