// Package routing maps classifications to routing decisions. Both decision
// engines are kept separate on purpose: the tier scheme drives what the
// pipeline does with a reply, the category scheme drives lead disposition
// and the manual-review workflow.
package routing

import (
	"fmt"

	"triage_server/core/domain"
)

// Config holds the routing thresholds.
type Config struct {
	Tier1MinConfidence         float64 // auto-respond floor
	Tier2MinConfidence         float64 // draft-for-approval floor
	NegativeSentimentThreshold float64 // below this, force escalation
	HighValueDealThreshold     float64 // above this, force escalation
	ConfidenceFloor            float64 // category scheme downgrade floor
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		Tier1MinConfidence:         0.85,
		Tier2MinConfidence:         0.50,
		NegativeSentimentThreshold: -0.5,
		HighValueDealThreshold:     50000,
		ConfidenceFloor:            0.7,
	}
}

// DecideTier is a pure function from a classification to a tier decision.
//
// Forced escalations (negative sentiment, high deal value) preempt any
// confidence-based tier and are recorded via OverrideApplied.
func DecideTier(c domain.Classification, dealValue float64, cfg *Config) domain.TierDecision {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if c.Sentiment < cfg.NegativeSentimentThreshold {
		return domain.TierDecision{
			Tier:            domain.TierEscalate,
			Reason:          fmt.Sprintf("negative sentiment %.2f below %.2f", c.Sentiment, cfg.NegativeSentimentThreshold),
			OverrideApplied: true,
		}
	}
	if cfg.HighValueDealThreshold > 0 && dealValue > cfg.HighValueDealThreshold {
		return domain.TierDecision{
			Tier:            domain.TierEscalate,
			Reason:          fmt.Sprintf("deal value %.0f above threshold", dealValue),
			OverrideApplied: true,
		}
	}

	switch {
	case c.IntentConfidence >= cfg.Tier1MinConfidence:
		return domain.TierDecision{
			Tier:   domain.TierAutoRespond,
			Reason: fmt.Sprintf("confidence %.2f meets auto-respond floor", c.IntentConfidence),
		}
	case c.IntentConfidence >= cfg.Tier2MinConfidence:
		return domain.TierDecision{
			Tier:   domain.TierDraft,
			Reason: fmt.Sprintf("confidence %.2f meets draft floor", c.IntentConfidence),
		}
	default:
		return domain.TierDecision{
			Tier:   domain.TierEscalate,
			Reason: fmt.Sprintf("confidence %.2f below draft floor", c.IntentConfidence),
		}
	}
}
