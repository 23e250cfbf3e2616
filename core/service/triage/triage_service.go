// Package triage orchestrates the reply pipeline: idempotency, classification,
// routing, draft creation, escalation and the manual-review handoff.
package triage

import (
	"context"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/draft"
	"triage_server/core/service/review"
	"triage_server/core/service/routing"
	"triage_server/pkg/logger"
)

// Actions recorded per processed reply.
const (
	ActionAutoRespond  = "auto_respond"
	ActionDraftCreated = "draft_created"
	ActionEscalated    = "escalated"
	ActionInFlight     = "in_flight"
)

// Config holds pipeline wiring options.
type Config struct {
	Routing *routing.Config

	// Notification channels.
	DraftChannel      string
	EscalationChannel string
}

// Service is the pipeline entry point. One instance serves all workers;
// per-reply state lives in the stores, not in the service.
type Service struct {
	engine   *classification.Engine
	category *routing.CategoryRouter
	drafts   *draft.Service
	review   *review.Workflow

	cache    out.ResultCache
	ledger   out.ProcessedReplyRepository
	threads  out.ActiveThreadRepository
	sessErrs out.SessionErrorRepository
	archive  out.ReplyArchive
	notifier out.HumanNotifier
	crm      out.CRMPort

	cfg   Config
	stats Stats
	log   *logger.Logger
}

// Deps bundles the collaborators of the pipeline service.
type Deps struct {
	Engine   *classification.Engine
	Category *routing.CategoryRouter
	Drafts   *draft.Service
	Review   *review.Workflow

	Cache    out.ResultCache
	Ledger   out.ProcessedReplyRepository
	Threads  out.ActiveThreadRepository
	SessErrs out.SessionErrorRepository
	Archive  out.ReplyArchive
	Notifier out.HumanNotifier
	CRM      out.CRMPort
}

// NewService creates the pipeline service.
func NewService(d Deps, cfg Config, log *logger.Logger) *Service {
	if cfg.Routing == nil {
		cfg.Routing = routing.DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		engine:   d.Engine,
		category: d.Category,
		drafts:   d.Drafts,
		review:   d.Review,
		cache:    d.Cache,
		ledger:   d.Ledger,
		threads:  d.Threads,
		sessErrs: d.SessErrs,
		archive:  d.Archive,
		notifier: d.Notifier,
		crm:      d.CRM,
		cfg:      cfg,
		log:      log.WithField("component", "triage"),
	}
}

// Stats returns the pipeline counters.
func (s *Service) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Handle processes one inbound reply. It never returns an error: every
// outcome, including partial failure, is expressed in the ProcessingResult.
func (s *Service) Handle(ctx context.Context, event *domain.ReplyEvent) *domain.ProcessingResult {
	start := time.Now()
	log := s.log.WithField("reply_id", event.ReplyID)

	// Idempotency gate. The cache claim is fast but advisory; the ledger is
	// authoritative and checked on every cache miss or cache failure.
	if prior := s.checkDuplicate(ctx, event.ReplyID, log); prior != nil {
		s.stats.duplicates.Add(1)
		return prior
	}

	result := &domain.ProcessingResult{ReplyID: event.ReplyID, Success: true}

	if s.archive != nil {
		if err := s.archive.Save(ctx, event); err != nil {
			// Audit trail only; the reply still gets processed.
			s.recordError(ctx, result, event.ReplyID, domain.ErrCodePersistence,
				fmt.Sprintf("reply archive: %v", err), true)
		}
	}

	s.upsertThread(ctx, result, event, domain.ThreadProcessing, "")

	clsRes := s.engine.Classify(ctx, event)
	c := clsRes.Classification
	result.Classification = &c
	if clsRes.FallbackUsed {
		s.stats.fallbacks.Add(1)
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodeClassification,
			"classifier unavailable, fallback classification used", true)
	}

	tier := routing.DecideTier(c, event.DealValue, s.cfg.Routing)
	category := s.category.Decide(ctx, event, flattenHistory(event.History), clsRes.AutoReply)
	result.Tier = tier.Tier
	result.Category = category.EffectiveCategory

	log.WithFields(map[string]any{
		"intent":     string(c.Intent),
		"confidence": c.IntentConfidence,
		"tier":       int(tier.Tier),
		"category":   string(category.EffectiveCategory),
		"override":   tier.OverrideApplied,
	}).Info("reply classified")

	switch tier.Tier {
	case domain.TierAutoRespond:
		s.autoRespond(ctx, result, event, &c, &category)
	case domain.TierDraft:
		s.createDraft(ctx, result, event, &c)
	default:
		s.escalate(ctx, result, event, &c, tier.Reason)
	}

	// The manual-review workflow runs whenever the effective category is C,
	// independent of the tier action above.
	if category.EffectiveCategory == domain.CategoryManualReview && s.review != nil {
		s.stats.manualReviews.Add(1)
		rev := s.review.Run(ctx, event, &c, &category)
		result.PatternID = rev.PatternID
		result.Errors = append(result.Errors, rev.Errors...)
		if !rev.Success {
			result.Success = false
		}
	}

	s.finalize(ctx, result, event, start)
	s.stats.processed.Add(1)
	return result
}

// checkDuplicate returns the prior result when the reply was already seen.
func (s *Service) checkDuplicate(ctx context.Context, replyID string, log *logger.Logger) *domain.ProcessingResult {
	claimed := true
	if s.cache != nil {
		created, err := s.cache.PutNX(ctx, replyID)
		if err != nil {
			log.WithError(err).Warn("idempotency cache unavailable, falling back to ledger")
		} else {
			claimed = created
		}
	}

	if claimed {
		// Cache claim won; the ledger still guards against cache evictions.
		marker, prior, err := s.ledger.Get(ctx, replyID)
		if err != nil {
			log.WithError(err).Warn("ledger lookup failed")
			return nil
		}
		if marker == nil {
			return nil
		}
		if prior == nil {
			prior = resultFromMarker(marker)
		}
		prior.Duplicate = true
		return prior
	}

	if s.cache != nil {
		prior, err := s.cache.GetResult(ctx, replyID)
		if err == nil && prior != nil {
			prior.Duplicate = true
			return prior
		}
	}
	marker, prior, err := s.ledger.Get(ctx, replyID)
	if err == nil && marker != nil {
		if prior == nil {
			prior = resultFromMarker(marker)
		}
		prior.Duplicate = true
		return prior
	}

	// Claimed by a concurrent worker whose result is not visible yet.
	return &domain.ProcessingResult{
		ReplyID:   replyID,
		Duplicate: true,
		Success:   true,
		Action:    ActionInFlight,
	}
}

func resultFromMarker(m *domain.ProcessedReply) *domain.ProcessingResult {
	return &domain.ProcessingResult{
		ReplyID: m.ReplyID,
		Success: true,
		Action:  m.Action,
		Tier:    m.Tier,
	}
}

// autoRespond handles tier 1: the reply is answered without human review.
func (s *Service) autoRespond(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, c *domain.Classification, category *domain.CategoryDecision) {
	result.Action = ActionAutoRespond
	s.stats.autoResponded.Add(1)

	// Only a non-downgraded category may drive lead disposition.
	switch category.EffectiveCategory {
	case domain.CategoryInterested:
		s.updateLeadStatus(ctx, result, event, out.LeadStatusInterested)
	case domain.CategoryNotInterested:
		s.updateLeadStatus(ctx, result, event, out.LeadStatusNotInterested)
	}

	if c.Intent == domain.IntentUnsubscribe {
		if err := s.crm.StopCampaign(ctx, event.LeadID); err != nil {
			s.recordError(ctx, result, event.ReplyID, domain.ErrCodeCRM,
				fmt.Sprintf("campaign stop: %v", err), true)
		}
	}

	s.removeThread(ctx, event.ThreadID)
}

// createDraft handles tier 2: a response draft goes to a human for approval.
func (s *Service) createDraft(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, c *domain.Classification) {
	result.Action = ActionDraftCreated
	s.stats.drafted.Add(1)

	d, err := s.drafts.Create(ctx, draft.CreateRequest{
		ReplyID:        event.ReplyID,
		ThreadID:       event.ThreadID,
		LeadID:         event.LeadID,
		ResponseText:   draftSkeleton(c.Intent),
		TemplateID:     event.LastTemplateID,
		Classification: *c,
	})
	if err != nil {
		result.Success = false
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodePersistence,
			fmt.Sprintf("draft create: %v", err), false)
		return
	}
	result.DraftID = d.DraftID

	ref, err := s.notifier.Post(ctx, &out.Notification{
		Channel: s.cfg.DraftChannel,
		Text:    draftNotificationText(event, c, d),
		Actions: []out.NotifyAction{
			{Label: "Approve", Action: string(domain.ActionApprove), Target: d.DraftID},
			{Label: "Edit & Approve", Action: string(domain.ActionApproveEdit), Target: d.DraftID},
			{Label: "Reject", Action: string(domain.ActionReject), Target: d.DraftID},
			{Label: "Escalate", Action: string(domain.ActionEscalate), Target: d.DraftID},
		},
	})
	if err != nil {
		// The draft stays discoverable through the ops API even when the
		// notification never reached the channel.
		result.Success = false
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodeNotification,
			fmt.Sprintf("draft notification: %v", err), false)
	} else if err := s.drafts.AttachMessageRef(ctx, d.DraftID, ref); err != nil {
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodePersistence,
			fmt.Sprintf("draft message ref: %v", err), true)
	}

	s.upsertThread(ctx, result, event, domain.ThreadPendingApproval, d.DraftID)
}

// escalate handles tier 3.
func (s *Service) escalate(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, c *domain.Classification, reason string) {
	result.Action = ActionEscalated
	s.stats.escalated.Add(1)

	s.updateLeadStatus(ctx, result, event, out.LeadStatusEscalated)

	if _, err := s.notifier.Post(ctx, &out.Notification{
		Channel: s.cfg.EscalationChannel,
		Text: fmt.Sprintf("Escalated reply from %s\nReason: %s\nIntent: %s (%.2f), sentiment %.2f\n%s",
			event.LeadID, reason, c.Intent, c.IntentConfidence, c.Sentiment, excerpt(event.Text)),
	}); err != nil {
		result.Success = false
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodeNotification,
			fmt.Sprintf("escalation notification: %v", err), false)
	}

	s.upsertThread(ctx, result, event, domain.ThreadEscalated, "")
}

// finalize records the reply in the durable ledger and the result cache.
func (s *Service) finalize(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, start time.Time) {
	marker := &domain.ProcessedReply{
		ReplyID:     event.ReplyID,
		ThreadID:    event.ThreadID,
		Tier:        result.Tier,
		Action:      result.Action,
		ProcessedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}
	if err := s.ledger.Record(ctx, marker, result); err != nil {
		result.Success = false
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodePersistence,
			fmt.Sprintf("ledger record: %v", err), false)
	}
	if s.cache != nil {
		if err := s.cache.StoreResult(ctx, event.ReplyID, result); err != nil {
			s.log.WithError(err).WithField("reply_id", event.ReplyID).
				Warn("result cache store failed")
		}
	}
}

func (s *Service) updateLeadStatus(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, status string) {
	if err := s.crm.UpdateLeadStatus(ctx, event.LeadID, status); err != nil {
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodeCRM,
			fmt.Sprintf("lead status %s: %v", status, err), true)
	}
}

func (s *Service) upsertThread(ctx context.Context, result *domain.ProcessingResult, event *domain.ReplyEvent, status domain.ThreadStatus, draftID string) {
	t := &domain.ActiveThread{
		ThreadID:  event.ThreadID,
		LeadID:    event.LeadID,
		Status:    status,
		DraftID:   draftID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.threads.Upsert(ctx, t); err != nil {
		s.recordError(ctx, result, event.ReplyID, domain.ErrCodePersistence,
			fmt.Sprintf("active thread upsert: %v", err), true)
	}
}

func (s *Service) removeThread(ctx context.Context, threadID string) {
	if err := s.threads.Remove(ctx, threadID); err != nil {
		s.log.WithError(err).WithField("thread", threadID).Warn("active thread remove failed")
	}
}

// recordError appends to the result's error list and the session ledger.
// recovered marks failures the pipeline absorbed without affecting success.
func (s *Service) recordError(ctx context.Context, result *domain.ProcessingResult, replyID, code, msg string, recovered bool) {
	result.Errors = append(result.Errors, domain.ProcessingError{Code: code, Message: msg})
	if s.sessErrs == nil {
		return
	}
	e := &domain.SessionError{
		ReplyID:    replyID,
		ErrorCode:  code,
		Message:    msg,
		OccurredAt: time.Now().UTC(),
		Recovered:  recovered,
	}
	if err := s.sessErrs.Append(ctx, e); err != nil {
		s.log.WithError(err).Warn("session error append failed")
	}
}

// draftSkeleton seeds the response text by intent. Wording is reviewed and
// usually edited by a human before sending.
func draftSkeleton(intent domain.Intent) string {
	switch intent {
	case domain.IntentPositiveInterest:
		return "Great to hear you're interested. Would a short call this week work to walk through next steps?"
	case domain.IntentQuestion:
		return "Thanks for the question. [answer here] Happy to go deeper on a quick call if useful."
	case domain.IntentObjection:
		return "That's a fair concern. [address objection] Would it help to see how similar teams handled this?"
	case domain.IntentReferral:
		return "Thanks for pointing me to the right person. I'll reach out to them directly."
	default:
		return "Thanks for getting back to me. [response here]"
	}
}

func draftNotificationText(event *domain.ReplyEvent, c *domain.Classification, d *domain.Draft) string {
	return fmt.Sprintf("Draft awaiting approval for %s\nReply: %s\nIntent: %s (%.2f)\nProposed: %s\nExpires: %s",
		event.LeadID, excerpt(event.Text), c.Intent, c.IntentConfidence,
		excerpt(d.ResponseText), d.ExpiresAt.Format(time.RFC3339))
}

func excerpt(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func flattenHistory(history []domain.HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	out := ""
	for _, m := range history {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}
