package classification

import (
	"testing"

	"triage_server/core/domain"
)

func TestHeuristicMatch(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantHint   domain.Intent
		wantGroups int
	}{
		{
			name:       "unsubscribe",
			text:       "Please remove me from your mailing list.",
			wantHint:   domain.IntentUnsubscribe,
			wantGroups: 1,
		},
		{
			name:       "unsubscribe outranks not interested",
			text:       "Not interested, unsubscribe me.",
			wantHint:   domain.IntentUnsubscribe,
			wantGroups: 2,
		},
		{
			name:       "referral",
			text:       "I'm the wrong person for this, reach out to our head of sales.",
			wantHint:   domain.IntentReferral,
			wantGroups: 1,
		},
		{
			name:       "positive interest",
			text:       "Sounds great, let's book a call next week.",
			wantHint:   domain.IntentPositiveInterest,
			wantGroups: 1,
		},
		{
			name:       "objection",
			text:       "We're already working with a vendor and it's too expensive anyway.",
			wantHint:   domain.IntentObjection,
			wantGroups: 1,
		},
		{
			name:       "bare question mark",
			text:       "Could we revisit this in the spring?",
			wantHint:   domain.IntentQuestion,
			wantGroups: 1,
		},
		{
			name:       "question plus interest",
			text:       "I'm interested. How much does it cost?",
			wantHint:   domain.IntentPositiveInterest,
			wantGroups: 2,
		},
		{
			name:       "no match",
			text:       "Thanks.",
			wantHint:   "",
			wantGroups: 0,
		},
	}

	m := NewHeuristicMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.text)
			if got.Hint != tt.wantHint {
				t.Errorf("Hint = %q, want %q", got.Hint, tt.wantHint)
			}
			if got.GroupCount != tt.wantGroups {
				t.Errorf("GroupCount = %d, want %d (matched %v)", got.GroupCount, tt.wantGroups, got.MatchedRules)
			}
		})
	}
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain reply untouched",
			in:   "Sure, send over the details.",
			want: "Sure, send over the details.",
		},
		{
			name: "gmail quote marker",
			in:   "Works for me.\n\nOn Mon, Feb 2, 2026 at 10:12 AM Jo Kim wrote:\n> original outreach",
			want: "Works for me.",
		},
		{
			name: "angle-quoted lines dropped",
			in:   "Yes.\n> quoted line one\n> quoted line two",
			want: "Yes.",
		},
		{
			name: "mobile signature cut",
			in:   "Call me tomorrow.\nSent from my iPhone",
			want: "Call me tomorrow.",
		},
		{
			name: "forwarded block cut",
			in:   "See below.\n---- Forwarded message ----\nFrom: someone",
			want: "See below.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripQuoted(tt.in); got != tt.want {
				t.Errorf("stripQuoted() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNeedsCustomAnswer(t *testing.T) {
	if !needsCustomAnswer("Can you fill out our security questionnaire and SOC 2 report?") {
		t.Error("security questionnaire not flagged")
	}
	if needsCustomAnswer("Sounds good, send the deck.") {
		t.Error("plain reply flagged as custom")
	}
}
