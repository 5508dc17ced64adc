package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
)

const maxMessageLength = 2000

var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations and their messages. A report has at most one
// conversation: CreateConversation on a report that already has one merges
// the participants into it and returns the stored conversation.
type Store interface {
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ConversationForReport(ctx context.Context, reportID int64) (Conversation, error)
	AddParticipant(ctx context.Context, conversationID string, userID int64) error
	ListConversations(ctx context.Context, userID int64) ([]Conversation, error)
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// Broadcaster fans a stored message out to live subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
}

type Service struct {
	store       Store
	gate        *Gate
	broadcaster Broadcaster
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(store Store, gate *Gate, broadcaster Broadcaster, log zerolog.Logger) *Service {
	return &Service{
		store:       store,
		gate:        gate,
		broadcaster: broadcaster,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OpenForReport creates the conversation of a new report with the reporter
// as its first participant.
func (s *Service) OpenForReport(ctx context.Context, reportID int64, participants ...int64) (Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, Conversation{
		ReportID:     reportID,
		Participants: participants,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return Conversation{}, apperr.Internal("create conversation", err)
	}
	return conv, nil
}

// Join adds userID to the conversation of reportID, creating the
// conversation when the report has none yet. Two joins racing on a report
// without a conversation both end up in the same one through the store's
// merge on create.
func (s *Service) Join(ctx context.Context, reportID, userID int64) error {
	conv, err := s.store.ConversationForReport(ctx, reportID)
	if errors.Is(err, ErrConversationNotFound) {
		_, err = s.OpenForReport(ctx, reportID, userID)
		return err
	}
	if err != nil {
		return apperr.Internal("load conversation", err)
	}
	if conv.HasParticipant(userID) {
		return nil
	}
	if err := s.store.AddParticipant(ctx, conv.ID, userID); err != nil {
		return apperr.Internal("add participant", err)
	}
	return nil
}

func (s *Service) Conversations(ctx context.Context, userID int64) ([]Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list conversations", err)
	}
	return convs, nil
}

// Conversation returns a conversation visible to userID.
func (s *Service) Conversation(ctx context.Context, id string, userID int64) (Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return Conversation{}, apperr.NotFound("conversation not found")
		}
		return Conversation{}, apperr.Internal("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return Conversation{}, apperr.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

func (s *Service) Messages(ctx context.Context, conversationID string, userID int64) ([]Message, error) {
	if _, err := s.Conversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}
	return msgs, nil
}

// Send stores a message after the gate accepts it and then broadcasts it.
// A failed broadcast is logged; the message is already stored.
func (s *Service) Send(ctx context.Context, conversationID string, senderID int64, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, apperr.InvalidArgument("message content is required")
	}
	if len(content) > maxMessageLength {
		return Message{}, apperr.InvalidArgument("message content is too long")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return Message{}, apperr.NotFound("conversation not found")
		}
		return Message{}, apperr.Internal("load conversation", err)
	}
	if err := s.gate.CheckSend(ctx, conv, senderID); err != nil {
		return Message{}, err
	}

	msg, err := s.store.AppendMessage(ctx, Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return Message{}, apperr.Internal("store message", err)
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Publish(ctx, msg); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("message stored but broadcast failed")
		}
	}
	return msg, nil
}
