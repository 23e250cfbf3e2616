package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type fakePatternStore struct {
	stored    map[string]*domain.Pattern
	hits      []*domain.SimilarPattern
	upsertErr error
	searchErr error
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{stored: make(map[string]*domain.Pattern)}
}

func (f *fakePatternStore) Upsert(_ context.Context, p *domain.Pattern) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *p
	f.stored[p.PatternID] = &cp
	return nil
}

func (f *fakePatternStore) Get(_ context.Context, id string) (*domain.Pattern, error) {
	if p, ok := f.stored[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePatternStore) SearchSimilar(_ context.Context, _, _, _ string, _ int, _ float64) ([]*domain.SimilarPattern, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakePatternStore) UpdateLabel(_ context.Context, p *domain.Pattern) error {
	cp := *p
	f.stored[p.PatternID] = &cp
	return nil
}

type fakeNotifier struct {
	posts   []*out.Notification
	postErr error
}

func (f *fakeNotifier) Post(_ context.Context, n *out.Notification) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, n)
	return "msg-1", nil
}

type fakeCRM struct {
	statuses  map[string]string
	updateErr error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{statuses: make(map[string]string)}
}

func (f *fakeCRM) UpdateLeadStatus(_ context.Context, leadID, status string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.statuses[leadID] = status
	return nil
}

func (f *fakeCRM) StopCampaign(_ context.Context, _ string) error { return nil }

func reviewEvent() *domain.ReplyEvent {
	return &domain.ReplyEvent{
		ReplyID:  "r-1",
		ThreadID: "t-1",
		LeadID:   "lead-1",
		BrainID:  "brain-1",
		Channel:  domain.ChannelEmail,
		Text:     "We might be interested but need to check with procurement first.",
	}
}

func reviewInputs() (*domain.Classification, *domain.CategoryDecision) {
	c := &domain.Classification{Intent: domain.IntentUnclear, IntentConfidence: 0.55, Sentiment: 0.1}
	d := &domain.CategoryDecision{
		Category:          domain.CategoryInterested,
		EffectiveCategory: domain.CategoryManualReview,
		Confidence:        0.55,
		Reasoning:         "ambiguous buying signal",
		Downgraded:        true,
	}
	return c, d
}

func TestRun(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(*fakePatternStore, *fakeNotifier, *fakeCRM)
		wantSuccess   bool
		wantStored    bool
		wantNotified  bool
		wantStatusSet bool
		wantErrCodes  []string
	}{
		{
			name:          "all steps succeed",
			setup:         func(*fakePatternStore, *fakeNotifier, *fakeCRM) {},
			wantSuccess:   true,
			wantStored:    true,
			wantNotified:  true,
			wantStatusSet: true,
		},
		{
			name: "search failure is advisory",
			setup: func(ps *fakePatternStore, _ *fakeNotifier, _ *fakeCRM) {
				ps.searchErr = errors.New("index offline")
			},
			wantSuccess:   true,
			wantStored:    true,
			wantNotified:  true,
			wantStatusSet: true,
			wantErrCodes:  []string{domain.ErrCodeSearch},
		},
		{
			name: "pattern store failure does not block notification",
			setup: func(ps *fakePatternStore, _ *fakeNotifier, _ *fakeCRM) {
				ps.upsertErr = errors.New("write failed")
			},
			wantSuccess:   false,
			wantStored:    false,
			wantNotified:  true,
			wantStatusSet: true,
			wantErrCodes:  []string{domain.ErrCodePersistence},
		},
		{
			name: "crm failure does not block remaining steps",
			setup: func(_ *fakePatternStore, _ *fakeNotifier, crm *fakeCRM) {
				crm.updateErr = errors.New("crm 503")
			},
			wantSuccess:  false,
			wantStored:   true,
			wantNotified: true,
			wantErrCodes: []string{domain.ErrCodeCRM},
		},
		{
			name: "notification failure",
			setup: func(_ *fakePatternStore, n *fakeNotifier, _ *fakeCRM) {
				n.postErr = errors.New("channel gone")
			},
			wantSuccess:   false,
			wantStored:    true,
			wantNotified:  false,
			wantStatusSet: true,
			wantErrCodes:  []string{domain.ErrCodeNotification},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, n, crm := newFakePatternStore(), &fakeNotifier{}, newFakeCRM()
			tt.setup(ps, n, crm)

			c, d := reviewInputs()
			w := NewWorkflow(ps, n, crm, nil, "#reply-review", nil)
			res := w.Run(context.Background(), reviewEvent(), c, d)

			if res.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (errors: %v)", res.Success, tt.wantSuccess, res.Errors)
			}
			if res.PatternStored != tt.wantStored {
				t.Errorf("PatternStored = %v, want %v", res.PatternStored, tt.wantStored)
			}
			if res.NotificationSent != tt.wantNotified {
				t.Errorf("NotificationSent = %v, want %v", res.NotificationSent, tt.wantNotified)
			}
			if tt.wantStatusSet && crm.statuses["lead-1"] != out.LeadStatusPendingReview {
				t.Errorf("lead status = %q, want pending_review", crm.statuses["lead-1"])
			}
			for _, code := range tt.wantErrCodes {
				if !hasErrCode(res.Errors, code) {
					t.Errorf("Errors = %v, want code %s", res.Errors, code)
				}
			}
		})
	}
}

func hasErrCode(errs []domain.ProcessingError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestRunNotificationContent(t *testing.T) {
	ps, n, crm := newFakePatternStore(), &fakeNotifier{}, newFakeCRM()
	ps.hits = []*domain.SimilarPattern{
		{Pattern: domain.Pattern{PatternID: "p-old", ReplyText: "need to ask procurement", Label: "budget_hold"}, Score: 0.91},
	}

	w := NewWorkflow(ps, n, crm, nil, "#reply-review", nil)
	c, d := reviewInputs()
	res := w.Run(context.Background(), reviewEvent(), c, d)
	if !res.Success {
		t.Fatalf("Run() success = false, errors: %v", res.Errors)
	}
	if res.MessageRef != "msg-1" {
		t.Errorf("MessageRef = %q, want msg-1", res.MessageRef)
	}

	text := n.posts[0].Text
	if !strings.Contains(text, "91%") {
		t.Errorf("notification missing similarity percentage: %q", text)
	}
	if !strings.Contains(text, "budget_hold") {
		t.Errorf("notification missing pattern label: %q", text)
	}
	if len(n.posts[0].Actions) != 4 {
		t.Errorf("actions = %d, want 4", len(n.posts[0].Actions))
	}
}

func TestRunNoSimilarPatternsNote(t *testing.T) {
	ps, n, crm := newFakePatternStore(), &fakeNotifier{}, newFakeCRM()
	ps.searchErr = errors.New("index offline")

	w := NewWorkflow(ps, n, crm, nil, "#reply-review", nil)
	c, d := reviewInputs()
	res := w.Run(context.Background(), reviewEvent(), c, d)

	if !res.NotificationSent {
		t.Fatal("notification not sent after search failure")
	}
	if res.SearchSucceeded {
		t.Error("SearchSucceeded = true after search failure")
	}
	if !strings.Contains(n.posts[0].Text, "No similar patterns found") {
		t.Errorf("notification missing no-similar note: %q", n.posts[0].Text)
	}
}

func TestLabelPattern(t *testing.T) {
	ps, n, crm := newFakePatternStore(), &fakeNotifier{}, newFakeCRM()
	w := NewWorkflow(ps, n, crm, nil, "#reply-review", nil)

	c, d := reviewInputs()
	res := w.Run(context.Background(), reviewEvent(), c, d)
	if res.PatternID == "" {
		t.Fatal("no pattern stored")
	}

	p, err := w.LabelPattern(context.Background(), res.PatternID, "budget_hold", domain.OutcomeNurture, "sara", "follow up next quarter")
	if err != nil {
		t.Fatalf("LabelPattern() error = %v", err)
	}
	if !p.Labeled() || p.Label != "budget_hold" || p.HandledBy != "sara" {
		t.Errorf("labeled pattern = %+v", p)
	}

	// Exactly once.
	if _, err := w.LabelPattern(context.Background(), res.PatternID, "other", "", "sam", ""); err == nil {
		t.Fatal("second LabelPattern() succeeded, want error")
	}
	got, _ := ps.Get(context.Background(), res.PatternID)
	if got.Label != "budget_hold" {
		t.Errorf("label after rejected relabel = %q, want budget_hold", got.Label)
	}
}

func TestLabelPatternValidation(t *testing.T) {
	ps, n, crm := newFakePatternStore(), &fakeNotifier{}, newFakeCRM()
	w := NewWorkflow(ps, n, crm, nil, "#reply-review", nil)

	if _, err := w.LabelPattern(context.Background(), "missing", "x", "", "sara", ""); err == nil {
		t.Error("LabelPattern() on unknown pattern succeeded, want error")
	}
	if _, err := w.LabelPattern(context.Background(), "p", "", "", "sara", ""); err == nil {
		t.Error("LabelPattern() without label succeeded, want error")
	}
	if _, err := w.LabelPattern(context.Background(), "p", "x", domain.PatternOutcome("ghosted_forever"), "sara", ""); err == nil {
		t.Error("LabelPattern() with unknown outcome succeeded, want error")
	}
}
