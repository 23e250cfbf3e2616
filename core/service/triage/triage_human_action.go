package triage

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// HandleHumanAction applies a reviewer's out-of-band action to the draft it
// targets. Invalid actions come back as typed failure results; no partial
// state mutation precedes a failure.
func (s *Service) HandleHumanAction(ctx context.Context, action *domain.HumanAction) *domain.ActionResult {
	s.stats.humanActions.Add(1)

	d, err := s.drafts.Apply(ctx, action)
	if err != nil {
		appErr := apperr.AsAppError(err)
		if appErr == nil {
			appErr = apperr.InternalWithError(err)
		}
		return &domain.ActionResult{
			Success: false,
			Code:    appErr.Code,
			Message: appErr.Message,
		}
	}

	log := s.log.WithFields(map[string]any{
		"draft_id": d.DraftID,
		"status":   string(d.Status),
	})

	switch d.Status {
	case domain.DraftApproved, domain.DraftApprovedEdited:
		// An approved unsubscribe response also pulls the lead out of the
		// outreach sequence.
		if d.Classification.Intent == domain.IntentUnsubscribe {
			if err := s.crm.StopCampaign(ctx, d.LeadID); err != nil {
				log.WithError(err).Warn("campaign stop failed")
			}
		}
		s.removeThread(ctx, d.ThreadID)
	case domain.DraftRejected:
		s.removeThread(ctx, d.ThreadID)
	case domain.DraftEscalated:
		if err := s.crm.UpdateLeadStatus(ctx, d.LeadID, out.LeadStatusEscalated); err != nil {
			log.WithError(err).Warn("lead status update failed")
		}
		t := &domain.ActiveThread{
			ThreadID:  d.ThreadID,
			LeadID:    d.LeadID,
			Status:    domain.ThreadEscalated,
			DraftID:   d.DraftID,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.threads.Upsert(ctx, t); err != nil {
			log.WithError(err).Warn("active thread upsert failed")
		}
	}

	log.Info("human action applied")
	return &domain.ActionResult{
		Success: true,
		DraftID: d.DraftID,
		Status:  d.Status,
	}
}
