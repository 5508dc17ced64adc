package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"participium/pkg/messaging"
)

type conversationDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ReportID     int64              `bson:"report_id"`
	Participants []int64            `bson:"participants"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type messageDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `bson:"conversation_id"`
	SenderID       int64              `bson:"sender_id"`
	Content        string             `bson:"content"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// ConversationStore keeps one conversation per report and its messages in
// mongo.
type ConversationStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// EnsureIndexes makes report_id unique and speeds up the participant and
// message lookups.
func (s *ConversationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "report_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// CreateConversation inserts conv. When the report already has a
// conversation the participants are merged into it instead.
func (s *ConversationStore) CreateConversation(ctx context.Context, conv messaging.Conversation) (messaging.Conversation, error) {
	participants := conv.Participants
	if participants == nil {
		participants = []int64{}
	}
	doc := conversationDoc{ReportID: conv.ReportID, Participants: participants, CreatedAt: conv.CreatedAt}

	res, err := s.conversations.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.conversations.UpdateOne(ctx,
			bson.M{"report_id": conv.ReportID},
			bson.M{"$addToSet": bson.M{"participants": bson.M{"$each": participants}}},
		)
		if err != nil {
			return messaging.Conversation{}, fmt.Errorf("merge conversation: %w", err)
		}
		return s.ConversationForReport(ctx, conv.ReportID)
	}
	if err != nil {
		return messaging.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (messaging.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return messaging.Conversation{}, messaging.ErrConversationNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *ConversationStore) ConversationForReport(ctx context.Context, reportID int64) (messaging.Conversation, error) {
	return s.findOne(ctx, bson.M{"report_id": reportID})
}

func (s *ConversationStore) findOne(ctx context.Context, filter bson.M) (messaging.Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return messaging.Conversation{}, messaging.ErrConversationNotFound
	}
	if err != nil {
		return messaging.Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *ConversationStore) AddParticipant(ctx context.Context, conversationID string, userID int64) error {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return messaging.ErrConversationNotFound
	}
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$addToSet": bson.M{"participants": userID}},
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	if res.MatchedCount == 0 {
		return messaging.ErrConversationNotFound
	}
	return nil
}

func (s *ConversationStore) ListConversations(ctx context.Context, userID int64) ([]messaging.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]messaging.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, msg messaging.Message) (messaging.Message, error) {
	convID, err := primitive.ObjectIDFromHex(msg.ConversationID)
	if err != nil {
		return messaging.Message{}, messaging.ErrConversationNotFound
	}
	doc := messageDoc{
		ConversationID: convID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	res, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return messaging.Message{}, fmt.Errorf("insert message: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]messaging.Message, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, messaging.ErrConversationNotFound
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]messaging.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (d conversationDoc) toDomain() messaging.Conversation {
	return messaging.Conversation{
		ID:           d.ID.Hex(),
		ReportID:     d.ReportID,
		Participants: d.Participants,
		CreatedAt:    d.CreatedAt,
	}
}

func (d messageDoc) toDomain() messaging.Message {
	return messaging.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID.Hex(),
		SenderID:       d.SenderID,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt,
	}
}
