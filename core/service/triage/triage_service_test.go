package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/llm"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/draft"
	"triage_server/core/service/review"
	"triage_server/core/service/routing"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeLLM serves both the intent and the category classifier interfaces.
type fakeLLM struct {
	intent   llm.IntentResult
	category llm.CategoryResult

	intentErr   error
	categoryErr error

	intentCalls   int
	categoryCalls int
}

func (f *fakeLLM) ClassifyIntent(_ context.Context, _ *llm.IntentRequest) (*llm.IntentResult, error) {
	f.intentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	res := f.intent
	return &res, nil
}

func (f *fakeLLM) ClassifyCategory(_ context.Context, _, _ string) (*llm.CategoryResult, error) {
	f.categoryCalls++
	if f.categoryErr != nil {
		return nil, f.categoryErr
	}
	res := f.category
	return &res, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

type fakeCache struct {
	mu      sync.Mutex
	claims  map[string]bool
	results map[string]*domain.ProcessingResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{claims: make(map[string]bool), results: make(map[string]*domain.ProcessingResult)}
}

func (f *fakeCache) PutNX(_ context.Context, replyID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claims[replyID] {
		return false, nil
	}
	f.claims[replyID] = true
	return true, nil
}

func (f *fakeCache) StoreResult(_ context.Context, replyID string, r *domain.ProcessingResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.results[replyID] = &cp
	return nil
}

func (f *fakeCache) GetResult(_ context.Context, replyID string) (*domain.ProcessingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[replyID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCache) Release(_ context.Context, replyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, replyID)
	return nil
}

type fakeLedger struct {
	markers map[string]*domain.ProcessedReply
	results map[string]*domain.ProcessingResult
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		markers: make(map[string]*domain.ProcessedReply),
		results: make(map[string]*domain.ProcessingResult),
	}
}

func (f *fakeLedger) Record(_ context.Context, p *domain.ProcessedReply, r *domain.ProcessingResult) error {
	if _, ok := f.markers[p.ReplyID]; ok {
		return nil
	}
	f.markers[p.ReplyID] = p
	cp := *r
	f.results[p.ReplyID] = &cp
	return nil
}

func (f *fakeLedger) Get(_ context.Context, replyID string) (*domain.ProcessedReply, *domain.ProcessingResult, error) {
	m, ok := f.markers[replyID]
	if !ok {
		return nil, nil, nil
	}
	if r, ok := f.results[replyID]; ok {
		cp := *r
		return m, &cp, nil
	}
	return m, nil, nil
}

type fakeThreads struct {
	threads map[string]*domain.ActiveThread
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{threads: make(map[string]*domain.ActiveThread)}
}

func (f *fakeThreads) Upsert(_ context.Context, t *domain.ActiveThread) error {
	cp := *t
	f.threads[t.ThreadID] = &cp
	return nil
}

func (f *fakeThreads) Get(_ context.Context, id string) (*domain.ActiveThread, error) {
	return f.threads[id], nil
}

func (f *fakeThreads) Remove(_ context.Context, id string) error {
	delete(f.threads, id)
	return nil
}

func (f *fakeThreads) List(_ context.Context, _ int) ([]*domain.ActiveThread, error) {
	var all []*domain.ActiveThread
	for _, t := range f.threads {
		all = append(all, t)
	}
	return all, nil
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
	statuses map[string]string
	stopped  []string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{statuses: make(map[string]string)}
}

func (f *fakeCRM) UpdateLeadStatus(_ context.Context, leadID, status string) error {
	f.statuses[leadID] = status
	return nil
}

func (f *fakeCRM) StopCampaign(_ context.Context, leadID string) error {
	f.stopped = append(f.stopped, leadID)
	return nil
}

type fakePatterns struct {
	stored map[string]*domain.Pattern
}

func newFakePatterns() *fakePatterns {
	return &fakePatterns{stored: make(map[string]*domain.Pattern)}
}

func (f *fakePatterns) Upsert(_ context.Context, p *domain.Pattern) error {
	cp := *p
	f.stored[p.PatternID] = &cp
	return nil
}

func (f *fakePatterns) Get(_ context.Context, id string) (*domain.Pattern, error) {
	return f.stored[id], nil
}

func (f *fakePatterns) SearchSimilar(_ context.Context, _, _, _ string, _ int, _ float64) ([]*domain.SimilarPattern, error) {
	return nil, nil
}

func (f *fakePatterns) UpdateLabel(_ context.Context, p *domain.Pattern) error {
	cp := *p
	f.stored[p.PatternID] = &cp
	return nil
}

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

func (r *memDraftRepo) ListPending(_ context.Context, _ int) ([]*domain.Draft, error) {
	var all []*domain.Draft
	for _, d := range r.byID {
		if d.Status == domain.DraftPending {
			cp := *d
			all = append(all, &cp)
		}
	}
	return all, nil
}

func (r *memDraftRepo) ListExpired(_ context.Context, now time.Time, _ int) ([]*domain.Draft, error) {
	var all []*domain.Draft
	for _, d := range r.byID {
		if d.Expired(now) {
			cp := *d
			all = append(all, &cp)
		}
	}
	return all, nil
}

func (r *memDraftRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	svc      *Service
	llm      *fakeLLM
	cache    *fakeCache
	ledger   *fakeLedger
	threads  *fakeThreads
	notifier *fakeNotifier
	crm      *fakeCRM
	patterns *fakePatterns
	drafts   *memDraftRepo
}

func newHarness(llmFake *fakeLLM) *harness {
	h := &harness{
		llm:      llmFake,
		cache:    newFakeCache(),
		ledger:   newFakeLedger(),
		threads:  newFakeThreads(),
		notifier: &fakeNotifier{},
		crm:      newFakeCRM(),
		patterns: newFakePatterns(),
		drafts:   newMemDraftRepo(),
	}

	cfg := routing.DefaultConfig()
	draftSvc := draft.NewService(h.drafts, draft.DefaultTimeout, nil)
	reviewWf := review.NewWorkflow(h.patterns, h.notifier, h.crm, nil, "#review", nil)

	h.svc = NewService(Deps{
		Engine:   classification.NewEngine(h.llm, nil),
		Category: routing.NewCategoryRouter(h.llm, cfg, nil),
		Drafts:   draftSvc,
		Review:   reviewWf,
		Cache:    h.cache,
		Ledger:   h.ledger,
		Threads:  h.threads,
		Notifier: h.notifier,
		CRM:      h.crm,
	}, Config{Routing: cfg, DraftChannel: "#drafts", EscalationChannel: "#escalations"}, nil)
	return h
}

func event(replyID, text string) *domain.ReplyEvent {
	return &domain.ReplyEvent{
		ReplyID:    replyID,
		ThreadID:   "t-" + replyID,
		LeadID:     "lead-1",
		Channel:    domain.ChannelEmail,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleAutoReplyFastPath(t *testing.T) {
	h := newHarness(&fakeLLM{})

	res := h.svc.Handle(context.Background(), event("r-1",
		"I am out of office until Monday with limited access to email."))

	if h.llm.intentCalls != 0 {
		t.Errorf("intent classifier called %d times on fast path, want 0", h.llm.intentCalls)
	}
	if h.llm.categoryCalls != 0 {
		t.Errorf("category classifier called %d times on fast path, want 0", h.llm.categoryCalls)
	}
	if res.Classification.IntentConfidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", res.Classification.IntentConfidence)
	}
	if res.Classification.TokensUsed != 0 {
		t.Errorf("tokens = %d, want 0", res.Classification.TokensUsed)
	}
	if res.Tier != domain.TierAutoRespond || res.Action != ActionAutoRespond {
		t.Errorf("tier/action = %v/%s, want auto-respond", res.Tier, res.Action)
	}
	if res.Category != domain.CategoryNotInterested {
		t.Errorf("category = %s, want B", res.Category)
	}
}

func TestHandleIdempotency(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.8, Sentiment: 0.2, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.85},
	})
	ctx := context.Background()

	first := h.svc.Handle(ctx, event("r-1", "What does the pricing look like?"))
	if first.Duplicate {
		t.Fatal("first call marked duplicate")
	}
	classifyCalls := h.llm.intentCalls

	second := h.svc.Handle(ctx, event("r-1", "What does the pricing look like?"))
	if !second.Duplicate {
		t.Fatal("second call not marked duplicate")
	}
	if h.llm.intentCalls != classifyCalls {
		t.Errorf("second call re-classified: %d calls, want %d", h.llm.intentCalls, classifyCalls)
	}
	if second.Action != first.Action || second.Tier != first.Tier {
		t.Errorf("second result = %s/%v, want %s/%v", second.Action, second.Tier, first.Action, first.Tier)
	}
}

func TestHandleDraftTier(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.75, Sentiment: 0.1, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.85},
	})

	res := h.svc.Handle(context.Background(), event("r-1", "Could you share pricing for 50 seats?"))

	if res.Tier != domain.TierDraft || res.Action != ActionDraftCreated {
		t.Fatalf("tier/action = %v/%s, want draft", res.Tier, res.Action)
	}
	if res.DraftID == "" {
		t.Fatal("no draft id in result")
	}
	d := h.drafts.byID[res.DraftID]
	if d == nil || d.Status != domain.DraftPending {
		t.Fatalf("stored draft = %+v, want pending", d)
	}
	if d.MessageRef != "msg-1" {
		t.Errorf("MessageRef = %q, want msg-1", d.MessageRef)
	}
	if len(h.notifier.posts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.notifier.posts))
	}
	if got := len(h.notifier.posts[0].Actions); got != 4 {
		t.Errorf("notification actions = %d, want 4", got)
	}
	th := h.threads.threads[d.ThreadID]
	if th == nil || th.Status != domain.ThreadPendingApproval || th.DraftID != d.DraftID {
		t.Errorf("active thread = %+v, want pending_approval with draft", th)
	}
}

func TestHandleSentimentOverride(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentObjection, Confidence: 0.9, Sentiment: -0.8, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryNotInterested, Confidence: 0.9},
	})

	res := h.svc.Handle(context.Background(), event("r-1", "This is completely useless, stop wasting my time."))

	if res.Tier != domain.TierEscalate || res.Action != ActionEscalated {
		t.Errorf("tier/action = %v/%s, want escalate despite confidence 0.9", res.Tier, res.Action)
	}
	if h.crm.statuses["lead-1"] != out.LeadStatusEscalated {
		t.Errorf("lead status = %q, want escalated", h.crm.statuses["lead-1"])
	}
	if len(h.notifier.posts) != 1 || h.notifier.posts[0].Channel != "#escalations" {
		t.Errorf("escalation notification missing: %+v", h.notifier.posts)
	}
}

func TestHandleCategoryFloorTriggersReview(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.75, Sentiment: 0, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.6},
	})

	res := h.svc.Handle(context.Background(), event("r-1", "Maybe, depends on what procurement says."))

	if res.Category != domain.CategoryManualReview {
		t.Fatalf("effective category = %s, want C via floor downgrade", res.Category)
	}
	if res.PatternID == "" {
		t.Fatal("review workflow did not store a pattern")
	}
	if _, ok := h.patterns.stored[res.PatternID]; !ok {
		t.Errorf("pattern %s not in store", res.PatternID)
	}
	if h.crm.statuses["lead-1"] != out.LeadStatusPendingReview {
		t.Errorf("lead status = %q, want pending_review", h.crm.statuses["lead-1"])
	}
}

func TestHandleUnsubscribeAutoRespond(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentUnsubscribe, Confidence: 0.9, Sentiment: -0.2, Model: "fake-model", TokensUsed: 30},
		category: llm.CategoryResult{Category: domain.CategoryNotInterested, Confidence: 0.9},
	})

	res := h.svc.Handle(context.Background(), event("r-1", "Please remove me from your mailing list."))

	if res.Tier != domain.TierAutoRespond {
		t.Fatalf("tier = %v, want 1 at confidence 0.9", res.Tier)
	}
	if len(h.crm.stopped) != 1 || h.crm.stopped[0] != "lead-1" {
		t.Errorf("stopped campaigns = %v, want [lead-1]", h.crm.stopped)
	}
	if h.crm.statuses["lead-1"] != out.LeadStatusNotInterested {
		t.Errorf("lead status = %q, want not_interested", h.crm.statuses["lead-1"])
	}
}

func TestHandleClassifierDown(t *testing.T) {
	h := newHarness(&fakeLLM{
		intentErr:   errors.New("llm timeout"),
		categoryErr: errors.New("llm timeout"),
	})

	res := h.svc.Handle(context.Background(), event("r-1", "Interesting, tell me more about integrations."))

	// Fallback classification: unclear at 0.5 drafts for approval; the
	// category scheme degrades to manual review.
	if res.Classification.Intent != domain.IntentUnclear || res.Classification.IntentConfidence != 0.5 {
		t.Errorf("fallback classification = %s/%v, want unclear/0.5",
			res.Classification.Intent, res.Classification.IntentConfidence)
	}
	if res.Tier != domain.TierDraft {
		t.Errorf("tier = %v, want 2 at fallback confidence", res.Tier)
	}
	if res.Category != domain.CategoryManualReview {
		t.Errorf("category = %s, want C", res.Category)
	}
	if !hasCode(res.Errors, domain.ErrCodeClassification) {
		t.Errorf("errors = %v, want %s recorded", res.Errors, domain.ErrCodeClassification)
	}
}

func TestHandleNotificationFailure(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.75, Sentiment: 0.1, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.85},
	})
	h.notifier.postErr = errors.New("channel gone")

	res := h.svc.Handle(context.Background(), event("r-1", "Could you share pricing?"))

	if res.Success {
		t.Error("Success = true after notification failure")
	}
	if !hasCode(res.Errors, domain.ErrCodeNotification) {
		t.Errorf("errors = %v, want %s", res.Errors, domain.ErrCodeNotification)
	}
	// The draft itself survives and stays discoverable.
	if res.DraftID == "" || h.drafts.byID[res.DraftID] == nil {
		t.Error("draft lost after notification failure")
	}
}

func TestHandleHumanActionApprove(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentUnsubscribe, Confidence: 0.7, Sentiment: -0.1, Model: "fake-model", TokensUsed: 30},
		category: llm.CategoryResult{Category: domain.CategoryNotInterested, Confidence: 0.9},
	})
	ctx := context.Background()

	res := h.svc.Handle(ctx, event("r-1", "Take me off this list please."))
	if res.Tier != domain.TierDraft || res.DraftID == "" {
		t.Fatalf("setup: tier/draft = %v/%q, want drafted", res.Tier, res.DraftID)
	}

	ar := h.svc.HandleHumanAction(ctx, &domain.HumanAction{
		Type: domain.ActionApprove, TargetID: res.DraftID, ActorID: "sara",
	})
	if !ar.Success || ar.Status != domain.DraftApproved {
		t.Fatalf("action result = %+v, want approved", ar)
	}
	// Approving an unsubscribe response stops the campaign.
	if len(h.crm.stopped) != 1 {
		t.Errorf("stopped campaigns = %v, want 1 entry", h.crm.stopped)
	}
	if _, ok := h.threads.threads["t-r-1"]; ok {
		t.Error("active thread not removed after approval")
	}

	// Terminal draft: the second action is a typed failure.
	ar = h.svc.HandleHumanAction(ctx, &domain.HumanAction{
		Type: domain.ActionReject, TargetID: res.DraftID, ActorID: "sam",
	})
	if ar.Success || ar.Code != "INVALID_HUMAN_ACTION" {
		t.Errorf("action on terminal draft = %+v, want INVALID_HUMAN_ACTION failure", ar)
	}
}

func TestStatsCounters(t *testing.T) {
	h := newHarness(&fakeLLM{
		intent:   llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.75, Sentiment: 0.1, Model: "fake-model", TokensUsed: 40},
		category: llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.85},
	})
	ctx := context.Background()

	h.svc.Handle(ctx, event("r-1", "What does it cost?"))
	h.svc.Handle(ctx, event("r-1", "What does it cost?"))
	h.svc.Handle(ctx, event("r-2", "I am out of office until Monday."))

	got := h.svc.Stats()
	if got.Processed != 2 {
		t.Errorf("Processed = %d, want 2", got.Processed)
	}
	if got.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", got.Duplicates)
	}
	if got.Drafted != 1 || got.AutoResponded != 1 {
		t.Errorf("Drafted/AutoResponded = %d/%d, want 1/1", got.Drafted, got.AutoResponded)
	}
}

func hasCode(errs []domain.ProcessingError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
