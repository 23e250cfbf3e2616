// Package graph implements the Neo4j pattern store.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

const patternIndex = "pattern_embedding_index"

// Embedder computes the semantic embedding for a pattern's reply text.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// PatternAdapter implements out.PatternStore on Neo4j. Each Pattern is a
// node carrying its reply embedding; similarity search goes through the
// cosine vector index.
type PatternAdapter struct {
	driver   neo4j.DriverWithContext
	dbName   string
	embedder Embedder
}

// NewPatternAdapter creates a Neo4j pattern adapter.
func NewPatternAdapter(driver neo4j.DriverWithContext, dbName string, embedder Embedder) *PatternAdapter {
	return &PatternAdapter{driver: driver, dbName: dbName, embedder: embedder}
}

// EnsureIndexes creates the vector index and supporting lookups.
func (a *PatternAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		"CREATE VECTOR INDEX " + patternIndex + " IF NOT EXISTS " +
			"FOR (p:Pattern) " +
			"ON (p.embedding) " +
			"OPTIONS {indexConfig: {`vector.dimensions`: 1536, `vector.similarity_function`: 'cosine'}}",
		`CREATE INDEX pattern_brain_idx IF NOT EXISTS FOR (p:Pattern) ON (p.brain_id)`,
		`CREATE INDEX pattern_reply_idx IF NOT EXISTS FOR (p:Pattern) ON (p.reply_id)`,
		`CREATE INDEX pattern_created_idx IF NOT EXISTS FOR (p:Pattern) ON (p.created_at)`,
	}

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Upsert computes the embedding for the reply text and stores the pattern.
func (a *PatternAdapter) Upsert(ctx context.Context, p *domain.Pattern) error {
	embedding, err := a.embedder.Embedding(ctx, p.ReplyText)
	if err != nil {
		return fmt.Errorf("failed to embed pattern text: %w", err)
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MERGE (p:Pattern {id: $id})
		SET p.reply_id = $replyID,
			p.lead_id = $leadID,
			p.brain_id = $brainID,
			p.channel = $channel,
			p.reply_text = $replyText,
			p.history = $history,
			p.confidence = $confidence,
			p.reasoning = $reasoning,
			p.embedding = $embedding,
			p.created_at = $createdAt
	`

	params := map[string]interface{}{
		"id":         p.PatternID,
		"replyID":    p.ReplyID,
		"leadID":     p.LeadID,
		"brainID":    p.BrainID,
		"channel":    string(p.Channel),
		"replyText":  p.ReplyText,
		"history":    p.History,
		"confidence": p.Confidence,
		"reasoning":  p.Reasoning,
		"embedding":  embedding,
		"createdAt":  p.CreatedAt.Unix(),
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to store pattern: %w", err)
	}
	return nil
}

// Get retrieves a pattern by id, or nil when absent.
func (a *PatternAdapter) Get(ctx context.Context, patternID string) (*domain.Pattern, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MATCH (p:Pattern {id: $id})
		RETURN p.id AS id, p.reply_id AS reply_id, p.lead_id AS lead_id,
			   p.brain_id AS brain_id, p.channel AS channel,
			   p.reply_text AS reply_text, p.history AS history,
			   p.confidence AS confidence, p.reasoning AS reasoning,
			   p.label AS label, p.handling_notes AS handling_notes,
			   p.outcome AS outcome, p.handled_by AS handled_by,
			   p.labeled_at AS labeled_at, p.created_at AS created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": patternID})
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	return patternFromRecord(result.Record()), nil
}

// SearchSimilar runs a cosine similarity search over the pattern corpus,
// scoped to one brain and excluding the pattern just stored.
func (a *PatternAdapter) SearchSimilar(ctx context.Context, brainID, queryText, excludeID string, limit int, minScore float64) ([]*domain.SimilarPattern, error) {
	embedding, err := a.embedder.Embedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	// Over-fetch so post-index filters do not starve the result set.
	query := `
		CALL db.index.vector.queryNodes($index, $fetch, $embedding)
		YIELD node, score
		WHERE score >= $minScore
		  AND node.id <> $excludeID
		  AND ($brainID = '' OR node.brain_id = $brainID)
		RETURN node.id AS id, score, node.reply_id AS reply_id,
			   node.lead_id AS lead_id, node.brain_id AS brain_id,
			   node.channel AS channel, node.reply_text AS reply_text,
			   node.history AS history, node.confidence AS confidence,
			   node.reasoning AS reasoning, node.label AS label,
			   node.handling_notes AS handling_notes, node.outcome AS outcome,
			   node.handled_by AS handled_by, node.labeled_at AS labeled_at,
			   node.created_at AS created_at
		ORDER BY score DESC
		LIMIT $limit
	`

	params := map[string]interface{}{
		"index":     patternIndex,
		"fetch":     limit * 4,
		"embedding": embedding,
		"minScore":  minScore,
		"excludeID": excludeID,
		"brainID":   brainID,
		"limit":     limit,
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search patterns: %w", err)
	}

	var hits []*domain.SimilarPattern
	for result.Next(ctx) {
		record := result.Record()
		hits = append(hits, &domain.SimilarPattern{
			Pattern: *patternFromRecord(record),
			Score:   getFloatValue(record, "score"),
		})
	}
	return hits, nil
}

// UpdateLabel writes the human label fields onto the pattern node.
func (a *PatternAdapter) UpdateLabel(ctx context.Context, p *domain.Pattern) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	var labeledAt int64
	if p.LabeledAt != nil {
		labeledAt = p.LabeledAt.Unix()
	}

	query := `
		MATCH (p:Pattern {id: $id})
		SET p.label = $label,
			p.handling_notes = $notes,
			p.outcome = $outcome,
			p.handled_by = $handledBy,
			p.labeled_at = $labeledAt
	`

	params := map[string]interface{}{
		"id":        p.PatternID,
		"label":     p.Label,
		"notes":     p.HandlingNotes,
		"outcome":   string(p.Outcome),
		"handledBy": p.HandledBy,
		"labeledAt": labeledAt,
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to label pattern: %w", err)
	}
	return nil
}

func patternFromRecord(record *neo4j.Record) *domain.Pattern {
	p := &domain.Pattern{
		PatternID:     getStringValue(record, "id"),
		ReplyID:       getStringValue(record, "reply_id"),
		LeadID:        getStringValue(record, "lead_id"),
		BrainID:       getStringValue(record, "brain_id"),
		Channel:       domain.Channel(getStringValue(record, "channel")),
		ReplyText:     getStringValue(record, "reply_text"),
		History:       getStringValue(record, "history"),
		Confidence:    getFloatValue(record, "confidence"),
		Reasoning:     getStringValue(record, "reasoning"),
		Label:         getStringValue(record, "label"),
		HandlingNotes: getStringValue(record, "handling_notes"),
		Outcome:       domain.PatternOutcome(getStringValue(record, "outcome")),
		HandledBy:     getStringValue(record, "handled_by"),
	}

	if ts, ok := record.Get("created_at"); ok && ts != nil {
		if tsInt, ok := ts.(int64); ok {
			p.CreatedAt = time.Unix(tsInt, 0).UTC()
		}
	}
	if ts, ok := record.Get("labeled_at"); ok && ts != nil {
		if tsInt, ok := ts.(int64); ok && tsInt > 0 {
			t := time.Unix(tsInt, 0).UTC()
			p.LabeledAt = &t
		}
	}
	return p
}

func getStringValue(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getFloatValue(record *neo4j.Record, key string) float64 {
	if v, ok := record.Get(key); ok && v != nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

var _ out.PatternStore = (*PatternAdapter)(nil)
