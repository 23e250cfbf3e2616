package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// =============================================================================
// MongoDB Draft Adapter
// =============================================================================

const collectionDrafts = "response_drafts"

// DraftAdapter implements out.DraftRepository using MongoDB.
type DraftAdapter struct {
	collection *mongo.Collection
}

// NewDraftAdapter creates a new MongoDB draft adapter.
func NewDraftAdapter(db *mongo.Database) *DraftAdapter {
	return &DraftAdapter{collection: db.Collection(collectionDrafts)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *DraftAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "draft_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "reply_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "message_ref", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "thread_id", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type draftDocument struct {
	DraftID      string `bson:"draft_id"`
	ReplyID      string `bson:"reply_id"`
	ThreadID     string `bson:"thread_id"`
	LeadID       string `bson:"lead_id"`
	ResponseText string `bson:"response_text"`
	TemplateID   string `bson:"template_id,omitempty"`
	MessageRef   string `bson:"message_ref,omitempty"`
	Status       string `bson:"status"`

	Classification domain.Classification `bson:"classification"`

	EditedText string     `bson:"edited_text,omitempty"`
	ApprovedBy string     `bson:"approved_by,omitempty"`
	ApprovedAt *time.Time `bson:"approved_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDraftDocument(d *domain.Draft) *draftDocument {
	return &draftDocument{
		DraftID:        d.DraftID,
		ReplyID:        d.ReplyID,
		ThreadID:       d.ThreadID,
		LeadID:         d.LeadID,
		ResponseText:   d.ResponseText,
		TemplateID:     d.TemplateID,
		MessageRef:     d.MessageRef,
		Status:         string(d.Status),
		Classification: d.Classification,
		EditedText:     d.EditedText,
		ApprovedBy:     d.ApprovedBy,
		ApprovedAt:     d.ApprovedAt,
		CreatedAt:      d.CreatedAt,
		ExpiresAt:      d.ExpiresAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (doc *draftDocument) toDomain() *domain.Draft {
	return &domain.Draft{
		DraftID:        doc.DraftID,
		ReplyID:        doc.ReplyID,
		ThreadID:       doc.ThreadID,
		LeadID:         doc.LeadID,
		ResponseText:   doc.ResponseText,
		TemplateID:     doc.TemplateID,
		MessageRef:     doc.MessageRef,
		Status:         domain.DraftStatus(doc.Status),
		Classification: doc.Classification,
		EditedText:     doc.EditedText,
		ApprovedBy:     doc.ApprovedBy,
		ApprovedAt:     doc.ApprovedAt,
		CreatedAt:      doc.CreatedAt,
		ExpiresAt:      doc.ExpiresAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// =============================================================================
// Operations
// =============================================================================

// Create inserts a new draft.
func (a *DraftAdapter) Create(ctx context.Context, d *domain.Draft) error {
	if _, err := a.collection.InsertOne(ctx, toDraftDocument(d)); err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// Update replaces the stored draft.
func (a *DraftAdapter) Update(ctx context.Context, d *domain.Draft) error {
	filter := bson.M{"draft_id": d.DraftID}
	res, err := a.collection.ReplaceOne(ctx, filter, toDraftDocument(d))
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("draft %s not found", d.DraftID)
	}
	return nil
}

// GetByID retrieves a draft by id, or nil when absent.
func (a *DraftAdapter) GetByID(ctx context.Context, draftID string) (*domain.Draft, error) {
	return a.findOne(ctx, bson.M{"draft_id": draftID})
}

// GetByReplyID retrieves the most recent draft for a reply.
func (a *DraftAdapter) GetByReplyID(ctx context.Context, replyID string) (*domain.Draft, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return a.findOne(ctx, bson.M{"reply_id": replyID}, opts)
}

// GetByMessageRef retrieves a draft by its notification message reference.
func (a *DraftAdapter) GetByMessageRef(ctx context.Context, messageRef string) (*domain.Draft, error) {
	if messageRef == "" {
		return nil, nil
	}
	return a.findOne(ctx, bson.M{"message_ref": messageRef})
}

// GetOpenByThread returns the pending draft for a thread, or nil.
func (a *DraftAdapter) GetOpenByThread(ctx context.Context, threadID string) (*domain.Draft, error) {
	filter := bson.M{"thread_id": threadID, "status": string(domain.DraftPending)}
	return a.findOne(ctx, filter)
}

// ListPending returns pending drafts, oldest first.
func (a *DraftAdapter) ListPending(ctx context.Context, limit int) ([]*domain.Draft, error) {
	filter := bson.M{"status": string(domain.DraftPending)}
	return a.find(ctx, filter, limit)
}

// ListExpired returns pending drafts whose deadline has passed at now.
func (a *DraftAdapter) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Draft, error) {
	filter := bson.M{
		"status":     string(domain.DraftPending),
		"expires_at": bson.M{"$lte": now},
	}
	return a.find(ctx, filter, limit)
}

// Delete removes a draft.
func (a *DraftAdapter) Delete(ctx context.Context, draftID string) error {
	if _, err := a.collection.DeleteOne(ctx, bson.M{"draft_id": draftID}); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (a *DraftAdapter) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Draft, error) {
	var doc draftDocument
	err := a.collection.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find draft: %w", err)
	}
	return doc.toDomain(), nil
}

func (a *DraftAdapter) find(ctx context.Context, filter bson.M, limit int) ([]*domain.Draft, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer cursor.Close(ctx)

	var drafts []*domain.Draft
	for cursor.Next(ctx) {
		var doc draftDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode draft: %w", err)
		}
		drafts = append(drafts, doc.toDomain())
	}
	return drafts, cursor.Err()
}

var _ out.DraftRepository = (*DraftAdapter)(nil)
