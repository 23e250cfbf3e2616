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
// MongoDB Reply Archive Adapter
// =============================================================================

const collectionReplies = "reply_archive"

// ReplyArchiveAdapter implements out.ReplyArchive using MongoDB. Raw reply
// events are kept for audit with a TTL so the collection stays bounded.
type ReplyArchiveAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
}

// NewReplyArchiveAdapter creates a new reply archive adapter. retention <= 0
// keeps replies for 90 days.
func NewReplyArchiveAdapter(db *mongo.Database, retention time.Duration) *ReplyArchiveAdapter {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &ReplyArchiveAdapter{
		collection: db.Collection(collectionReplies),
		retention:  retention,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ReplyArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reply_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "archived_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(a.retention.Seconds())),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type replyDocument struct {
	ReplyID    string            `bson:"reply_id"`
	Event      domain.ReplyEvent `bson:"event"`
	ThreadID   string            `bson:"thread_id"`
	ArchivedAt time.Time         `bson:"archived_at"`
}

// Save archives one reply event. Re-archiving the same reply id is a no-op.
func (a *ReplyArchiveAdapter) Save(ctx context.Context, event *domain.ReplyEvent) error {
	doc := &replyDocument{
		ReplyID:    event.ReplyID,
		Event:      *event,
		ThreadID:   event.ThreadID,
		ArchivedAt: time.Now().UTC(),
	}

	filter := bson.M{"reply_id": event.ReplyID}
	opts := options.Update().SetUpsert(true)
	if _, err := a.collection.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, opts); err != nil {
		return fmt.Errorf("failed to archive reply: %w", err)
	}
	return nil
}

// Get retrieves an archived reply event, or nil when absent.
func (a *ReplyArchiveAdapter) Get(ctx context.Context, replyID string) (*domain.ReplyEvent, error) {
	var doc replyDocument
	err := a.collection.FindOne(ctx, bson.M{"reply_id": replyID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived reply: %w", err)
	}
	return &doc.Event, nil
}

var _ out.ReplyArchive = (*ReplyArchiveAdapter)(nil)
