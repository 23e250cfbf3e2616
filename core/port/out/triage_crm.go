package out

import "context"

// Lead status values pushed to the CRM.
const (
	LeadStatusPendingReview = "pending_review"
	LeadStatusInterested    = "interested"
	LeadStatusNotInterested = "not_interested"
	LeadStatusEscalated     = "escalated"
)

// CRMPort updates lead records in the external CRM. All calls are
// best-effort from the pipeline's point of view.
type CRMPort interface {
	UpdateLeadStatus(ctx context.Context, leadID, status string) error

	// StopCampaign removes the lead from active outreach sequences
	// (unsubscribe handling). The stop logic itself lives in the CRM.
	StopCampaign(ctx context.Context, leadID string) error
}
