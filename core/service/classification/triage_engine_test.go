package classification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/llm"
)

type fakeClassifier struct {
	result  llm.IntentResult
	err     error
	calls   int
	lastReq *llm.IntentRequest
}

func (f *fakeClassifier) ClassifyIntent(_ context.Context, req *llm.IntentRequest) (*llm.IntentResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func (f *fakeClassifier) Model() string { return "fake-model" }

func testEvent(text string) *domain.ReplyEvent {
	return &domain.ReplyEvent{ReplyID: "r-1", ThreadID: "t-1", LeadID: "lead-1", Text: text}
}

func TestClassifyFastPath(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantIntent domain.Intent
	}{
		{
			name:       "out of office",
			text:       "I am out of office until March 3rd with limited access to email.",
			wantIntent: domain.IntentOutOfOffice,
		},
		{
			name:       "automatic reply marker",
			text:       "Automatic reply: I will return on Monday.",
			wantIntent: domain.IntentOutOfOffice,
		},
		{
			name:       "bounce",
			text:       "Delivery has failed to these recipients. Address not found.",
			wantIntent: domain.IntentBounce,
		},
		{
			name:       "bounce outranks ooo wording",
			text:       "Undeliverable: user is out of office and mailbox full",
			wantIntent: domain.IntentBounce,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClassifier{}
			e := NewEngine(fake, nil)

			res := e.Classify(context.Background(), testEvent(tt.text))

			if !res.AutoReply {
				t.Fatal("AutoReply = false, want fast path hit")
			}
			if fake.calls != 0 {
				t.Errorf("model called %d times, want 0", fake.calls)
			}
			c := res.Classification
			if c.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", c.Intent, tt.wantIntent)
			}
			if c.IntentConfidence != 0.95 {
				t.Errorf("IntentConfidence = %v, want 0.95", c.IntentConfidence)
			}
			if c.TokensUsed != 0 {
				t.Errorf("TokensUsed = %d, want 0", c.TokensUsed)
			}
		})
	}
}

func TestClassifyFallback(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("deadline exceeded")}
	e := NewEngine(fake, nil)

	res := e.Classify(context.Background(), testEvent("Happy to discuss, what did you have in mind?"))

	if !res.FallbackUsed {
		t.Fatal("FallbackUsed = false, want fallback on model error")
	}
	c := res.Classification
	if c.Intent != domain.IntentUnclear {
		t.Errorf("Intent = %s, want unclear", c.Intent)
	}
	if c.IntentConfidence != 0.5 {
		t.Errorf("IntentConfidence = %v, want 0.5", c.IntentConfidence)
	}
	if c.Sentiment != 0 {
		t.Errorf("Sentiment = %v, want 0", c.Sentiment)
	}
	if c.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0", c.TokensUsed)
	}
}

func TestClassifyPassesHint(t *testing.T) {
	fake := &fakeClassifier{
		result: llm.IntentResult{Intent: domain.IntentUnsubscribe, Confidence: 0.92, Model: "fake-model"},
	}
	e := NewEngine(fake, nil)

	res := e.Classify(context.Background(), testEvent("Please remove me from your mailing list."))

	if res.AutoReply {
		t.Fatal("unsubscribe request took the auto-reply fast path")
	}
	if fake.lastReq.HintIntent != domain.IntentUnsubscribe {
		t.Errorf("HintIntent = %s, want unsubscribe", fake.lastReq.HintIntent)
	}
	if res.Classification.Intent != domain.IntentUnsubscribe {
		t.Errorf("Intent = %s, want unsubscribe", res.Classification.Intent)
	}
}

func TestClassifyStripsQuotedHistory(t *testing.T) {
	fake := &fakeClassifier{
		result: llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.8, Model: "fake-model"},
	}
	e := NewEngine(fake, nil)

	text := "Does this work with Salesforce?\n\nOn Tue, Jan 6, 2026 at 9:00 AM Alex Doe wrote:\n> Hi there,\n> checking in about our platform."
	e.Classify(context.Background(), testEvent(text))

	if strings.Contains(fake.lastReq.ReplyText, "checking in") {
		t.Errorf("quoted history leaked into prompt: %q", fake.lastReq.ReplyText)
	}
	if !strings.Contains(fake.lastReq.ReplyText, "Salesforce") {
		t.Errorf("reply body missing from prompt: %q", fake.lastReq.ReplyText)
	}
}

func TestComplexityAndUrgency(t *testing.T) {
	// 350 words, four question marks, model confidence 0.6: multiple
	// complexity triggers at once must grade complex, and a question at
	// neutral sentiment sits at medium urgency.
	var b strings.Builder
	for i := 0; i < 346; i++ {
		b.WriteString("detail ")
	}
	b.WriteString("one? two? three? four?")

	fake := &fakeClassifier{
		result: llm.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.6, Sentiment: 0, Model: "fake-model"},
	}
	e := NewEngine(fake, nil)

	res := e.Classify(context.Background(), testEvent(b.String()))

	if res.Classification.Complexity != domain.ComplexityComplex {
		t.Errorf("Complexity = %s, want complex (wc=%d)", res.Classification.Complexity, res.WordCount)
	}
	if res.Classification.Urgency != domain.UrgencyMedium {
		t.Errorf("Urgency = %s, want medium", res.Classification.Urgency)
	}
}

func TestDeriveComplexity(t *testing.T) {
	tests := []struct {
		name            string
		sentiment       float64
		wc              int
		confidence      float64
		heuristicGroups int
		customAnswer    bool
		want            domain.Complexity
	}{
		{"short confident reply", 0.2, 40, 0.9, 1, false, domain.ComplexitySimple},
		{"very negative sentiment", -0.6, 40, 0.9, 1, false, domain.ComplexityComplex},
		{"long reply", 0, 301, 0.9, 1, false, domain.ComplexityComplex},
		{"low confidence", 0, 40, 0.45, 1, false, domain.ComplexityComplex},
		{"multiple intent groups", 0, 40, 0.9, 2, false, domain.ComplexityComplex},
		{"custom answer needed", 0, 40, 0.9, 1, true, domain.ComplexityComplex},
		{"mid-length moderate confidence", 0, 150, 0.75, 1, false, domain.ComplexityMedium},
		{"slightly negative", -0.4, 40, 0.9, 0, false, domain.ComplexityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveComplexity(tt.sentiment, tt.wc, tt.confidence, tt.heuristicGroups, tt.customAnswer)
			if got != tt.want {
				t.Errorf("deriveComplexity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveUrgency(t *testing.T) {
	tests := []struct {
		name       string
		intent     domain.Intent
		sentiment  float64
		complexity domain.Complexity
		want       domain.Urgency
	}{
		{"positive interest", domain.IntentPositiveInterest, 0.5, domain.ComplexitySimple, domain.UrgencyHigh},
		{"angry objection", domain.IntentObjection, -0.7, domain.ComplexityComplex, domain.UrgencyHigh},
		{"out of office", domain.IntentOutOfOffice, 0, domain.ComplexitySimple, domain.UrgencyLow},
		{"question", domain.IntentQuestion, 0, domain.ComplexitySimple, domain.UrgencyMedium},
		{"complex unclear", domain.IntentUnclear, 0, domain.ComplexityComplex, domain.UrgencyMedium},
		{"simple unclear", domain.IntentUnclear, 0, domain.ComplexitySimple, domain.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveUrgency(tt.intent, tt.sentiment, tt.complexity)
			if got != tt.want {
				t.Errorf("deriveUrgency() = %s, want %s", got, tt.want)
			}
		})
	}
}
