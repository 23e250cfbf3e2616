// Package review implements the manual-review workflow for category C replies.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

const (
	defaultSearchLimit = 5
	minSimilarity      = 0.7

	// maxShownPatterns bounds how many similar cases the notification lists.
	maxShownPatterns = 3

	maxExcerptLen = 200
	maxHistoryLen = 1000
)

// Result records which workflow steps succeeded. Success covers the lead
// status update, pattern storage and notification; the similarity search is
// advisory and excluded.
type Result struct {
	PatternID        string                  `json:"pattern_id,omitempty"`
	MessageRef       string                  `json:"message_ref,omitempty"`
	StatusUpdated    bool                    `json:"status_updated"`
	PatternStored    bool                    `json:"pattern_stored"`
	SearchSucceeded  bool                    `json:"search_succeeded"`
	NotificationSent bool                    `json:"notification_sent"`
	SimilarFound     int                     `json:"similar_found"`
	Success          bool                    `json:"success"`
	Errors           []domain.ProcessingError `json:"errors,omitempty"`
}

// Workflow runs the category C steps. Each step is independently
// fault-tolerant: a failure is recorded and the remaining steps still run.
type Workflow struct {
	patterns    out.PatternStore
	notifier    out.HumanNotifier
	crm         out.CRMPort
	errs        out.SessionErrorRepository
	channel     string
	searchLimit int
	log         *logger.Logger
}

// NewWorkflow creates the manual-review workflow. channel names the chat-ops
// destination for review notifications.
func NewWorkflow(patterns out.PatternStore, notifier out.HumanNotifier, crm out.CRMPort, errs out.SessionErrorRepository, channel string, log *logger.Logger) *Workflow {
	if log == nil {
		log = logger.Default()
	}
	return &Workflow{
		patterns:    patterns,
		notifier:    notifier,
		crm:         crm,
		errs:        errs,
		channel:     channel,
		searchLimit: defaultSearchLimit,
		log:         log.WithField("component", "review"),
	}
}

// Run executes the workflow for one reply. It never returns an error; every
// failure lands in the result's error list and the session ledger.
func (w *Workflow) Run(ctx context.Context, event *domain.ReplyEvent, c *domain.Classification, decision *domain.CategoryDecision) *Result {
	res := &Result{}

	// Step 1: mark the lead for review in the CRM. Best effort.
	if err := w.crm.UpdateLeadStatus(ctx, event.LeadID, out.LeadStatusPendingReview); err != nil {
		w.recordError(ctx, res, event.ReplyID, domain.ErrCodeCRM, fmt.Sprintf("lead status update: %v", err))
	} else {
		res.StatusUpdated = true
	}

	// Step 2: persist the pattern with its embedding.
	pattern := &domain.Pattern{
		PatternID:  uuid.New().String(),
		ReplyID:    event.ReplyID,
		LeadID:     event.LeadID,
		BrainID:    event.BrainID,
		Channel:    event.Channel,
		ReplyText:  event.Text,
		History:    flattenHistory(event.History),
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		CreatedAt:  time.Now().UTC(),
	}
	if err := w.patterns.Upsert(ctx, pattern); err != nil {
		w.recordError(ctx, res, event.ReplyID, domain.ErrCodePersistence, fmt.Sprintf("pattern store: %v", err))
	} else {
		res.PatternStored = true
		res.PatternID = pattern.PatternID
	}

	// Step 3: similarity search against the prior pattern corpus. Advisory;
	// the notification is sent either way.
	var similar []*domain.SimilarPattern
	hits, err := w.patterns.SearchSimilar(ctx, event.BrainID, event.Text, pattern.PatternID, w.searchLimit, minSimilarity)
	if err != nil {
		w.recordError(ctx, res, event.ReplyID, domain.ErrCodeSearch, fmt.Sprintf("similarity search: %v", err))
	} else {
		res.SearchSucceeded = true
		similar = hits
	}
	res.SimilarFound = len(similar)

	// Step 4: notify the review channel.
	n := &out.Notification{
		Channel: w.channel,
		Text:    w.composeText(event, c, decision, similar),
		Actions: []out.NotifyAction{
			{Label: "Mark Interested", Action: "mark_interested", Target: pattern.PatternID},
			{Label: "Mark Not Interested", Action: "mark_not_interested", Target: pattern.PatternID},
			{Label: "Add Label", Action: "add_label", Target: pattern.PatternID},
			{Label: "Reply Manually", Action: "reply_manually", Target: event.ThreadID},
		},
	}
	ref, err := w.notifier.Post(ctx, n)
	if err != nil {
		w.recordError(ctx, res, event.ReplyID, domain.ErrCodeNotification, fmt.Sprintf("review notification: %v", err))
	} else {
		res.NotificationSent = true
		res.MessageRef = ref
	}

	res.Success = res.StatusUpdated && res.PatternStored && res.NotificationSent
	w.log.WithFields(map[string]any{
		"reply_id": event.ReplyID,
		"pattern":  res.PatternID,
		"similar":  res.SimilarFound,
		"success":  res.Success,
	}).Info("manual review workflow finished")
	return res
}

// LabelPattern closes the loop on a handled pattern. A pattern is labeled
// exactly once; a second label attempt fails without mutating anything.
func (w *Workflow) LabelPattern(ctx context.Context, patternID, label string, outcome domain.PatternOutcome, handledBy, notes string) (*domain.Pattern, error) {
	if label == "" {
		return nil, apperr.MissingField("label")
	}
	if outcome != "" && !domain.ValidOutcome(string(outcome)) {
		return nil, apperr.BadRequest(fmt.Sprintf("unknown outcome %q", outcome))
	}

	p, err := w.patterns.Get(ctx, patternID)
	if err != nil {
		return nil, apperr.PersistenceError("pattern lookup", err)
	}
	if p == nil {
		return nil, apperr.NotFound("pattern")
	}
	if p.Labeled() {
		return nil, apperr.InvalidHumanAction(fmt.Sprintf("pattern %s already labeled", patternID))
	}

	now := time.Now().UTC()
	p.Label = label
	p.Outcome = outcome
	p.HandledBy = handledBy
	p.HandlingNotes = notes
	p.LabeledAt = &now
	if err := w.patterns.UpdateLabel(ctx, p); err != nil {
		return nil, apperr.PersistenceError("pattern label", err)
	}

	w.log.WithFields(map[string]any{
		"pattern_id": patternID,
		"label":      label,
		"handled_by": handledBy,
	}).Info("pattern labeled")
	return p, nil
}

func (w *Workflow) recordError(ctx context.Context, res *Result, replyID, code, msg string) {
	res.Errors = append(res.Errors, domain.ProcessingError{Code: code, Message: msg})
	w.log.WithField("reply_id", replyID).Warn("%s", msg)
	if w.errs == nil {
		return
	}
	e := &domain.SessionError{
		ReplyID:    replyID,
		ErrorCode:  code,
		Message:    msg,
		OccurredAt: time.Now().UTC(),
		Recovered:  true,
	}
	if err := w.errs.Append(ctx, e); err != nil {
		w.log.WithError(err).Warn("session error append failed")
	}
}

// composeText builds the human-facing review message.
func (w *Workflow) composeText(event *domain.ReplyEvent, c *domain.Classification, decision *domain.CategoryDecision, similar []*domain.SimilarPattern) string {
	var b strings.Builder

	b.WriteString("Manual review needed\n")
	fmt.Fprintf(&b, "Lead: %s", event.LeadID)
	if event.LeadName != "" {
		fmt.Fprintf(&b, " (%s", event.LeadName)
		if event.LeadCompany != "" {
			fmt.Fprintf(&b, ", %s", event.LeadCompany)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Reply: %s\n", truncate(event.Text, maxExcerptLen))
	fmt.Fprintf(&b, "Confidence: %.2f", decision.Confidence)
	if decision.Downgraded {
		fmt.Fprintf(&b, " (downgraded from %s)", decision.Category)
	}
	b.WriteString("\n")
	if decision.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", decision.Reasoning)
	}
	fmt.Fprintf(&b, "Intent: %s, sentiment %.2f\n", c.Intent, c.Sentiment)

	if len(similar) == 0 {
		b.WriteString("No similar patterns found.\n")
		return b.String()
	}

	b.WriteString("Similar past cases:\n")
	for i, s := range similar {
		if i >= maxShownPatterns {
			break
		}
		fmt.Fprintf(&b, "%d. [%d%%] ", i+1, int(s.Score*100))
		if s.Pattern.Label != "" {
			fmt.Fprintf(&b, "%s", s.Pattern.Label)
			if s.Pattern.Outcome != "" {
				fmt.Fprintf(&b, " (%s)", s.Pattern.Outcome)
			}
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%s\n", truncate(s.Pattern.ReplyText, 80))
	}
	return b.String()
}

// flattenHistory renders the conversation preceding the reply, bounded so
// the stored payload stays small.
func flattenHistory(history []domain.HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		if b.Len() > maxHistoryLen {
			break
		}
	}
	return truncate(b.String(), maxHistoryLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
