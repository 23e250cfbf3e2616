package draft

import (
	"context"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"
)

// memDraftRepo is an in-memory DraftRepository for tests.
type memDraftRepo struct {
	byID map[string]*domain.Draft
}

func newMemDraftRepo() *memDraftRepo {
	return &memDraftRepo{byID: make(map[string]*domain.Draft)}
}

func (r *memDraftRepo) Create(_ context.Context, d *domain.Draft) error {
	cp := *d
	r.byID[d.DraftID] = &cp
	return nil
}

func (r *memDraftRepo) Update(_ context.Context, d *domain.Draft) error {
	cp := *d
	r.byID[d.DraftID] = &cp
	return nil
}

func (r *memDraftRepo) GetByID(_ context.Context, id string) (*domain.Draft, error) {
	if d, ok := r.byID[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r *memDraftRepo) GetByReplyID(_ context.Context, replyID string) (*domain.Draft, error) {
	for _, d := range r.byID {
		if d.ReplyID == replyID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memDraftRepo) GetByMessageRef(_ context.Context, ref string) (*domain.Draft, error) {
	for _, d := range r.byID {
		if ref != "" && d.MessageRef == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memDraftRepo) GetOpenByThread(_ context.Context, threadID string) (*domain.Draft, error) {
	for _, d := range r.byID {
		if d.ThreadID == threadID && d.Status == domain.DraftPending {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memDraftRepo) ListPending(_ context.Context, limit int) ([]*domain.Draft, error) {
	var out []*domain.Draft
	for _, d := range r.byID {
		if d.Status == domain.DraftPending {
			cp := *d
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memDraftRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.Draft, error) {
	var out []*domain.Draft
	for _, d := range r.byID {
		if d.Expired(now) {
			cp := *d
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memDraftRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

func newTestService(timeout time.Duration) (*Service, *memDraftRepo) {
	repo := newMemDraftRepo()
	return NewService(repo, timeout, nil), repo
}

func testCreateReq(replyID, threadID string) CreateRequest {
	return CreateRequest{
		ReplyID:      replyID,
		ThreadID:     threadID,
		LeadID:       "lead-1",
		ResponseText: "Thanks for getting back to us.",
		Classification: domain.Classification{
			Intent:           domain.IntentQuestion,
			IntentConfidence: 0.8,
		},
	}
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(DefaultTimeout)
	ctx := context.Background()

	d, err := svc.Create(ctx, testCreateReq("r-1", "t-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.Status != domain.DraftPending {
		t.Errorf("Status = %s, want pending", d.Status)
	}
	if d.DraftID == "" {
		t.Error("DraftID is empty")
	}
	want := d.CreatedAt.Add(DefaultTimeout)
	if !d.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", d.ExpiresAt, want)
	}
}

func TestCreateSupersedesOpenDraft(t *testing.T) {
	svc, repo := newTestService(DefaultTimeout)
	ctx := context.Background()

	first, err := svc.Create(ctx, testCreateReq("r-1", "t-1"))
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	second, err := svc.Create(ctx, testCreateReq("r-2", "t-1"))
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}

	stored := repo.byID[first.DraftID]
	if stored.Status != domain.DraftExpired {
		t.Errorf("superseded draft status = %s, want expired", stored.Status)
	}
	open, _ := repo.GetOpenByThread(ctx, "t-1")
	if open == nil || open.DraftID != second.DraftID {
		t.Errorf("open draft on thread = %+v, want %s", open, second.DraftID)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		action     domain.HumanAction
		wantStatus domain.DraftStatus
		wantErr    bool
	}{
		{
			name:       "approve",
			action:     domain.HumanAction{Type: domain.ActionApprove, ActorID: "sara"},
			wantStatus: domain.DraftApproved,
		},
		{
			name:       "approve with edit",
			action:     domain.HumanAction{Type: domain.ActionApproveEdit, ActorID: "sara", EditedText: "Revised reply."},
			wantStatus: domain.DraftApprovedEdited,
		},
		{
			name:    "approve_edit without text",
			action:  domain.HumanAction{Type: domain.ActionApproveEdit, ActorID: "sara"},
			wantErr: true,
		},
		{
			name:       "reject",
			action:     domain.HumanAction{Type: domain.ActionReject, ActorID: "sara"},
			wantStatus: domain.DraftRejected,
		},
		{
			name:       "escalate",
			action:     domain.HumanAction{Type: domain.ActionEscalate, ActorID: "sara"},
			wantStatus: domain.DraftEscalated,
		},
		{
			name:    "unknown action type",
			action:  domain.HumanAction{Type: "snooze", ActorID: "sara"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(DefaultTimeout)
			ctx := context.Background()

			d, err := svc.Create(ctx, testCreateReq("r-1", "t-1"))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			tt.action.TargetID = d.DraftID

			got, err := svc.Apply(ctx, &tt.action)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Apply() error = nil, want InvalidHumanAction")
				}
				appErr := apperr.AsAppError(err)
				if appErr == nil || appErr.Code != "INVALID_HUMAN_ACTION" {
					t.Errorf("Apply() error = %v, want INVALID_HUMAN_ACTION", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.action.Type != domain.ActionEscalate && got.ApprovedBy != tt.action.ActorID {
				t.Errorf("ApprovedBy = %q, want %q", got.ApprovedBy, tt.action.ActorID)
			}
			if tt.wantStatus == domain.DraftApprovedEdited && got.EditedText != tt.action.EditedText {
				t.Errorf("EditedText = %q, want %q", got.EditedText, tt.action.EditedText)
			}
		})
	}
}

func TestApplyTerminalDraft(t *testing.T) {
	svc, _ := newTestService(DefaultTimeout)
	ctx := context.Background()

	d, _ := svc.Create(ctx, testCreateReq("r-1", "t-1"))
	if _, err := svc.Apply(ctx, &domain.HumanAction{Type: domain.ActionApprove, TargetID: d.DraftID, ActorID: "sara"}); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	_, err := svc.Apply(ctx, &domain.HumanAction{Type: domain.ActionReject, TargetID: d.DraftID, ActorID: "sara"})
	if err == nil {
		t.Fatal("second Apply() on terminal draft succeeded, want error")
	}

	// No mutation on the failed action.
	got, _ := svc.Get(ctx, d.DraftID)
	if got.Status != domain.DraftApproved {
		t.Errorf("Status after rejected action = %s, want approved", got.Status)
	}
}

func TestApplyUnknownTarget(t *testing.T) {
	svc, _ := newTestService(DefaultTimeout)

	_, err := svc.Apply(context.Background(), &domain.HumanAction{Type: domain.ActionApprove, TargetID: "missing", ActorID: "sara"})
	if err == nil {
		t.Fatal("Apply() with unknown target succeeded, want error")
	}
}

func TestLazyExpiry(t *testing.T) {
	// timeout < 0 makes every draft already past its deadline.
	svc, _ := newTestService(-time.Minute)
	ctx := context.Background()

	d, err := svc.Create(ctx, testCreateReq("r-1", "t-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := svc.Get(ctx, d.DraftID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.DraftExpired {
		t.Errorf("Status on read past deadline = %s, want expired", got.Status)
	}

	// expired is terminal: a late approval must fail and not revive the draft.
	if _, err := svc.Apply(ctx, &domain.HumanAction{Type: domain.ActionApprove, TargetID: d.DraftID, ActorID: "sara"}); err == nil {
		t.Fatal("Apply() on expired draft succeeded, want error")
	}
	got, _ = svc.Get(ctx, d.DraftID)
	if got.Status != domain.DraftExpired {
		t.Errorf("Status after late approval = %s, want expired", got.Status)
	}
}

func TestResolveByMessageRef(t *testing.T) {
	svc, _ := newTestService(DefaultTimeout)
	ctx := context.Background()

	d, _ := svc.Create(ctx, testCreateReq("r-1", "t-1"))
	if err := svc.AttachMessageRef(ctx, d.DraftID, "msg-42"); err != nil {
		t.Fatalf("AttachMessageRef() error = %v", err)
	}

	got, err := svc.Resolve(ctx, "msg-42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got == nil || got.DraftID != d.DraftID {
		t.Errorf("Resolve(msg-42) = %+v, want draft %s", got, d.DraftID)
	}
}

func TestListPendingAppliesExpiry(t *testing.T) {
	svc, _ := newTestService(-time.Minute)
	ctx := context.Background()

	if _, err := svc.Create(ctx, testCreateReq("r-1", "t-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	open, err := svc.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("ListPending() returned %d drafts past deadline, want 0", len(open))
	}
}
