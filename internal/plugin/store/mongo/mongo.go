package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chatstack/chat-service/internal/config"
	"github.com/chatstack/chat-service/internal/model"
	registrymigrate "github.com/chatstack/chat-service/internal/registry/migrate"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const dbName = "chat_service"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.DBURL == "" {
				return nil, fmt.Errorf("mongo store: CHAT_SERVICE_DB_URL is required")
			}
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{
				client: client,
				db:     client.Database(dbName),
			}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)

	collections := map[string][]mongo.IndexModel{
		"conversations": {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "owner_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "last_active", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements ConversationStore using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- MongoDB document types ---

type messageDoc struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
}

type convDoc struct {
	ConversationID string       `bson:"conversation_id"`
	OwnerID        string       `bson:"owner_id"`
	Title          string       `bson:"title"`
	Messages       []messageDoc `bson:"messages"`
	CreatedAt      time.Time    `bson:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at"`
}

type convSummaryDoc struct {
	ConversationID string    `bson:"conversation_id"`
	Title          string    `bson:"title"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

type userDoc struct {
	ID         string     `bson:"_id"`
	Email      *string    `bson:"email,omitempty"`
	Name       *string    `bson:"name,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	LastActive *time.Time `bson:"last_active,omitempty"`
}

func (s *MongoStore) conversations() *mongo.Collection {
	return s.db.Collection("conversations")
}

func (s *MongoStore) users() *mongo.Collection {
	return s.db.Collection("users")
}

func messagePairDocs(pair model.MessagePair) []messageDoc {
	return []messageDoc{
		{Role: string(pair.User.Role), Content: pair.User.Content, Timestamp: pair.User.Timestamp},
		{Role: string(pair.Assistant.Role), Content: pair.Assistant.Content, Timestamp: pair.Assistant.Timestamp},
	}
}

// UpsertAppend appends the pair as one conditional upsert: $push applies on
// insert as well, so a missing (conversation_id, owner_id) document is created
// with the pair already in place and there is no read-then-write window. The
// unique compound index turns a lost create race into a duplicate-key error,
// which retries once as a plain append.
func (s *MongoStore) UpsertAppend(ctx context.Context, ownerID string, conversationID *uuid.UUID, titleIfNew string, pair model.MessagePair) (uuid.UUID, error) {
	convID := uuid.New()
	if conversationID != nil {
		convID = *conversationID
	}

	now := time.Now().UTC()
	filter := bson.M{"conversation_id": convID.String(), "owner_id": ownerID}
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": messagePairDocs(pair)}},
		"$set":  bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"title":      titleIfNew,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true)

	err := s.conversations().FindOneAndUpdate(ctx, filter, update, opts).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the create race to a concurrent upsert; the document exists now.
			err = s.conversations().FindOneAndUpdate(ctx, filter, update, opts).Err()
			if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
				return uuid.Nil, &registrystore.UnavailableError{Op: "UpsertAppend", Err: err}
			}
			return convID, nil
		}
		return uuid.Nil, &registrystore.UnavailableError{Op: "UpsertAppend", Err: err}
	}
	return convID, nil
}

func (s *MongoStore) ListConversations(ctx context.Context, ownerID string) ([]registrystore.ConversationSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	cursor, err := s.conversations().Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, &registrystore.UnavailableError{Op: "ListConversations", Err: err}
	}
	defer cursor.Close(ctx)

	summaries := []registrystore.ConversationSummary{}
	for cursor.Next(ctx) {
		var doc convSummaryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode conversation summary: %w", err)
		}
		id, err := uuid.Parse(doc.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("malformed conversation id %q: %w", doc.ConversationID, err)
		}
		summaries = append(summaries, registrystore.ConversationSummary{
			ID:        id,
			Title:     doc.Title,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, &registrystore.UnavailableError{Op: "ListConversations", Err: err}
	}
	return summaries, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error) {
	var doc convDoc
	err := s.conversations().FindOne(ctx, bson.M{
		"conversation_id": conversationID.String(),
		"owner_id":        ownerID,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	if err != nil {
		return nil, &registrystore.UnavailableError{Op: "GetConversation", Err: err}
	}

	messages := make([]model.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		messages[i] = model.Message{
			Role:      model.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}
	return &model.Conversation{
		ID:        conversationID,
		OwnerID:   doc.OwnerID,
		Title:     doc.Title,
		Messages:  messages,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error {
	if title == "" {
		return &registrystore.ValidationError{Field: "title", Message: "must not be empty"}
	}
	result, err := s.conversations().UpdateOne(ctx, bson.M{
		"conversation_id": conversationID.String(),
		"owner_id":        ownerID,
	}, bson.M{
		"$set": bson.M{"title": title, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return &registrystore.UnavailableError{Op: "RenameConversation", Err: err}
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	return nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error {
	result, err := s.conversations().DeleteOne(ctx, bson.M{
		"conversation_id": conversationID.String(),
		"owner_id":        ownerID,
	})
	if err != nil {
		return &registrystore.UnavailableError{Op: "DeleteConversation", Err: err}
	}
	if result.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	return nil
}

func (s *MongoStore) EnsureUser(ctx context.Context, user model.User) (bool, error) {
	if user.ID == "" {
		return false, &registrystore.ValidationError{Field: "userId", Message: "must not be empty"}
	}
	now := time.Now().UTC()
	set := bson.M{"last_active": now}
	if user.Email != nil {
		set["email"] = *user.Email
	}
	if user.Name != nil {
		set["name"] = *user.Name
	}
	result, err := s.users().UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, &registrystore.UnavailableError{Op: "EnsureUser", Err: err}
	}
	return result.UpsertedCount > 0, nil
}

func (s *MongoStore) TouchUser(ctx context.Context, userID string) error {
	result, err := s.users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{"last_active": time.Now().UTC()},
	})
	if err != nil {
		return &registrystore.UnavailableError{Op: "TouchUser", Err: err}
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ registrystore.ConversationStore = (*MongoStore)(nil)
