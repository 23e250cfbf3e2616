package routing

import (
	"context"
	"errors"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/llm"
)

func cls(confidence, sentiment float64) domain.Classification {
	return domain.Classification{
		Intent:           domain.IntentQuestion,
		IntentConfidence: confidence,
		Sentiment:        sentiment,
	}
}

func TestDecideTier(t *testing.T) {
	tests := []struct {
		name         string
		c            domain.Classification
		dealValue    float64
		wantTier     domain.Tier
		wantOverride bool
	}{
		{
			name:     "high confidence auto-responds",
			c:        cls(0.9, 0.2),
			wantTier: domain.TierAutoRespond,
		},
		{
			name:     "exactly at tier1 floor",
			c:        cls(0.85, 0),
			wantTier: domain.TierAutoRespond,
		},
		{
			name:     "mid confidence drafts",
			c:        cls(0.7, 0),
			wantTier: domain.TierDraft,
		},
		{
			name:     "exactly at tier2 floor",
			c:        cls(0.5, 0),
			wantTier: domain.TierDraft,
		},
		{
			name:     "low confidence escalates",
			c:        cls(0.3, 0),
			wantTier: domain.TierEscalate,
		},
		{
			name:         "negative sentiment overrides high confidence",
			c:            cls(0.95, -0.7),
			wantTier:     domain.TierEscalate,
			wantOverride: true,
		},
		{
			name:         "sentiment exactly at threshold is not an override",
			c:            cls(0.9, -0.5),
			wantTier:     domain.TierAutoRespond,
			wantOverride: false,
		},
		{
			name:         "high deal value overrides",
			c:            cls(0.95, 0.4),
			dealValue:    120000,
			wantTier:     domain.TierEscalate,
			wantOverride: true,
		},
		{
			name:      "deal value at threshold does not override",
			c:         cls(0.9, 0),
			dealValue: 50000,
			wantTier:  domain.TierAutoRespond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideTier(tt.c, tt.dealValue, nil)
			if got.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v (%s)", got.Tier, tt.wantTier, got.Reason)
			}
			if got.OverrideApplied != tt.wantOverride {
				t.Errorf("OverrideApplied = %v, want %v", got.OverrideApplied, tt.wantOverride)
			}
		})
	}
}

type fakeCategoryLLM struct {
	result llm.CategoryResult
	err    error
	calls  int
}

func (f *fakeCategoryLLM) ClassifyCategory(_ context.Context, _, _ string) (*llm.CategoryResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func TestCategoryDecide(t *testing.T) {
	tests := []struct {
		name           string
		result         llm.CategoryResult
		err            error
		autoReply      bool
		wantCategory   domain.Category
		wantEffective  domain.Category
		wantDowngraded bool
		wantModelCalls int
	}{
		{
			name:           "confident A stays A",
			result:         llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.9},
			wantCategory:   domain.CategoryInterested,
			wantEffective:  domain.CategoryInterested,
			wantModelCalls: 1,
		},
		{
			name:           "low-confidence A downgrades to C",
			result:         llm.CategoryResult{Category: domain.CategoryInterested, Confidence: 0.6},
			wantCategory:   domain.CategoryInterested,
			wantEffective:  domain.CategoryManualReview,
			wantDowngraded: true,
			wantModelCalls: 1,
		},
		{
			name:           "low-confidence B downgrades to C",
			result:         llm.CategoryResult{Category: domain.CategoryNotInterested, Confidence: 0.69},
			wantCategory:   domain.CategoryNotInterested,
			wantEffective:  domain.CategoryManualReview,
			wantDowngraded: true,
			wantModelCalls: 1,
		},
		{
			name:           "exactly at floor keeps category",
			result:         llm.CategoryResult{Category: domain.CategoryNotInterested, Confidence: 0.7},
			wantCategory:   domain.CategoryNotInterested,
			wantEffective:  domain.CategoryNotInterested,
			wantModelCalls: 1,
		},
		{
			name:           "auto-reply maps to B without model call",
			autoReply:      true,
			wantCategory:   domain.CategoryNotInterested,
			wantEffective:  domain.CategoryNotInterested,
			wantModelCalls: 0,
		},
		{
			name:          "classifier failure routes to C",
			err:           errors.New("llm down"),
			wantCategory:  domain.CategoryManualReview,
			wantEffective: domain.CategoryManualReview,
			// C at zero confidence is already C; not a downgrade.
			wantDowngraded: false,
			wantModelCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCategoryLLM{result: tt.result, err: tt.err}
			r := NewCategoryRouter(fake, nil, nil)

			event := &domain.ReplyEvent{ReplyID: "r-1", Text: "some reply"}
			got := r.Decide(context.Background(), event, "", tt.autoReply)

			if got.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", got.Category, tt.wantCategory)
			}
			if got.EffectiveCategory != tt.wantEffective {
				t.Errorf("EffectiveCategory = %s, want %s", got.EffectiveCategory, tt.wantEffective)
			}
			if got.Downgraded != tt.wantDowngraded {
				t.Errorf("Downgraded = %v, want %v", got.Downgraded, tt.wantDowngraded)
			}
			if fake.calls != tt.wantModelCalls {
				t.Errorf("model calls = %d, want %d", fake.calls, tt.wantModelCalls)
			}
		})
	}
}
