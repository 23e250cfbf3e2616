// Package draft implements the approval lifecycle of drafted responses.
package draft

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// DefaultTimeout is how long a draft waits for a human before expiring.
const DefaultTimeout = 30 * time.Minute

// CreateRequest carries everything needed to open a draft for a reply.
type CreateRequest struct {
	ReplyID        string
	ThreadID       string
	LeadID         string
	ResponseText   string
	TemplateID     string
	Classification domain.Classification
}

// Service owns the draft state machine.
//
// States: pending is the only initial state. approved, approved_edited,
// rejected, escalated and expired are all terminal. Expiry is detected
// lazily whenever a pending draft is read past its deadline.
type Service struct {
	drafts  out.DraftRepository
	timeout time.Duration
	log     *logger.Logger
}

// NewService creates the draft service. timeout <= 0 selects DefaultTimeout.
func NewService(drafts out.DraftRepository, timeout time.Duration, log *logger.Logger) *Service {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{drafts: drafts, timeout: timeout, log: log}
}

// Create opens a pending draft for a reply. A thread holds at most one open
// draft: an existing pending draft on the same thread is superseded, meaning
// it transitions to expired before the new draft is stored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Draft, error) {
	now := time.Now().UTC()

	prior, err := s.drafts.GetOpenByThread(ctx, req.ThreadID)
	if err != nil {
		return nil, apperr.PersistenceError("draft lookup", err)
	}
	if prior != nil {
		prior.Status = domain.DraftExpired
		prior.UpdatedAt = now
		if err := s.drafts.Update(ctx, prior); err != nil {
			return nil, apperr.PersistenceError("draft supersede", err)
		}
		s.log.WithFields(map[string]any{
			"draft_id": prior.DraftID,
			"thread":   req.ThreadID,
		}).Info("superseded open draft")
	}

	d := &domain.Draft{
		DraftID:        uuid.New().String(),
		ReplyID:        req.ReplyID,
		ThreadID:       req.ThreadID,
		LeadID:         req.LeadID,
		ResponseText:   req.ResponseText,
		TemplateID:     req.TemplateID,
		Status:         domain.DraftPending,
		Classification: req.Classification,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.timeout),
		UpdatedAt:      now,
	}
	if err := s.drafts.Create(ctx, d); err != nil {
		return nil, apperr.PersistenceError("draft create", err)
	}
	return d, nil
}

// AttachMessageRef links the notification-channel message to the draft so a
// reviewer's out-of-band action can be resolved back to it.
func (s *Service) AttachMessageRef(ctx context.Context, draftID, messageRef string) error {
	d, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return apperr.PersistenceError("draft lookup", err)
	}
	if d == nil {
		return apperr.NotFound("draft")
	}
	d.MessageRef = messageRef
	d.UpdatedAt = time.Now().UTC()
	if err := s.drafts.Update(ctx, d); err != nil {
		return apperr.PersistenceError("draft update", err)
	}
	return nil
}

// Get returns a draft by id, applying lazy expiry.
func (s *Service) Get(ctx context.Context, draftID string) (*domain.Draft, error) {
	d, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, apperr.PersistenceError("draft lookup", err)
	}
	return s.expireIfDue(ctx, d)
}

// GetByReply returns the draft created for a reply, applying lazy expiry.
func (s *Service) GetByReply(ctx context.Context, replyID string) (*domain.Draft, error) {
	d, err := s.drafts.GetByReplyID(ctx, replyID)
	if err != nil {
		return nil, apperr.PersistenceError("draft lookup", err)
	}
	return s.expireIfDue(ctx, d)
}

// Resolve finds the draft a human action targets. TargetID may be a draft id
// or a notification message ref; draft id wins when both match.
func (s *Service) Resolve(ctx context.Context, targetID string) (*domain.Draft, error) {
	d, err := s.drafts.GetByID(ctx, targetID)
	if err != nil {
		return nil, apperr.PersistenceError("draft lookup", err)
	}
	if d == nil {
		d, err = s.drafts.GetByMessageRef(ctx, targetID)
		if err != nil {
			return nil, apperr.PersistenceError("draft lookup", err)
		}
	}
	return s.expireIfDue(ctx, d)
}

// ListPending returns open drafts, oldest first, with lazy expiry applied.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*domain.Draft, error) {
	all, err := s.drafts.ListPending(ctx, limit)
	if err != nil {
		return nil, apperr.PersistenceError("draft list", err)
	}
	open := make([]*domain.Draft, 0, len(all))
	for _, d := range all {
		d, err = s.expireIfDue(ctx, d)
		if err != nil {
			return nil, err
		}
		if d.Status == domain.DraftPending {
			open = append(open, d)
		}
	}
	return open, nil
}

// GetExpiredDrafts returns pending drafts past their deadline, for the
// external sweeper. The sweep itself lives outside the state machine.
func (s *Service) GetExpiredDrafts(ctx context.Context, limit int) ([]*domain.Draft, error) {
	due, err := s.drafts.ListExpired(ctx, time.Now().UTC(), limit)
	if err != nil {
		return nil, apperr.PersistenceError("draft list", err)
	}
	return due, nil
}

// Apply executes a human action against the draft it targets. Terminal
// drafts reject further actions; nothing is mutated on a failed validation.
func (s *Service) Apply(ctx context.Context, action *domain.HumanAction) (*domain.Draft, error) {
	if action.TargetID == "" {
		return nil, apperr.InvalidHumanAction("missing target id")
	}

	d, err := s.Resolve(ctx, action.TargetID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.InvalidHumanAction(fmt.Sprintf("no draft for target %s", action.TargetID))
	}
	if d.Status.IsTerminal() {
		return nil, apperr.InvalidHumanAction(fmt.Sprintf("draft %s already %s", d.DraftID, d.Status))
	}

	now := time.Now().UTC()
	switch action.Type {
	case domain.ActionApprove:
		d.Status = domain.DraftApproved
		d.ApprovedBy = action.ActorID
		d.ApprovedAt = &now
	case domain.ActionApproveEdit:
		if action.EditedText == "" {
			return nil, apperr.InvalidHumanAction("approve_edit requires edited text")
		}
		d.Status = domain.DraftApprovedEdited
		d.EditedText = action.EditedText
		d.ApprovedBy = action.ActorID
		d.ApprovedAt = &now
	case domain.ActionReject:
		d.Status = domain.DraftRejected
		d.ApprovedBy = action.ActorID
	case domain.ActionEscalate:
		d.Status = domain.DraftEscalated
	default:
		return nil, apperr.InvalidHumanAction(fmt.Sprintf("unknown action type %q", action.Type))
	}

	d.UpdatedAt = now
	if err := s.drafts.Update(ctx, d); err != nil {
		return nil, apperr.PersistenceError("draft update", err)
	}

	s.log.WithFields(map[string]any{
		"draft_id": d.DraftID,
		"status":   string(d.Status),
		"actor":    action.ActorID,
	}).Info("draft resolved")
	return d, nil
}

// expireIfDue transitions a pending draft past its deadline to expired and
// persists the transition. Nil drafts pass through.
func (s *Service) expireIfDue(ctx context.Context, d *domain.Draft) (*domain.Draft, error) {
	if d == nil || !d.Expired(time.Now().UTC()) {
		return d, nil
	}
	d.Status = domain.DraftExpired
	d.UpdatedAt = time.Now().UTC()
	if err := s.drafts.Update(ctx, d); err != nil {
		return nil, apperr.PersistenceError("draft expire", err)
	}
	s.log.WithField("draft_id", d.DraftID).Info("draft expired")
	return d, nil
}
