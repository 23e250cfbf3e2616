package out

import (
	"context"

	"triage_server/core/domain"
)

// PatternStore is the vector store holding the manual-review pattern corpus.
//
// Upsert computes (or receives) a semantic embedding for the reply text so
// the pattern can later be retrieved by similarity. Patterns are never
// deleted; UpdatePayload mutates label fields exactly once.
type PatternStore interface {
	Upsert(ctx context.Context, pattern *domain.Pattern) error

	Get(ctx context.Context, patternID string) (*domain.Pattern, error)

	// SearchSimilar returns up to limit patterns with similarity >= minScore
	// to the query text, scoped by brain id, excluding excludeID.
	SearchSimilar(ctx context.Context, brainID, queryText, excludeID string, limit int, minScore float64) ([]*domain.SimilarPattern, error)

	// UpdateLabel applies the human label to a stored pattern.
	UpdateLabel(ctx context.Context, pattern *domain.Pattern) error
}
