package service

import (
	"context"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/internal/repository/specification"
	"realtime-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// ChatQuery is the query side of the store as seen by sessions and the profile resolver.
type ChatQuery struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewChatQuery(uowFactory unitofwork.RepositoryFactory, log logger.ILogger) *ChatQuery {
	return &ChatQuery{
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (q *ChatQuery) ListConversations(ctx context.Context, userId uuid.UUID) ([]entity.Conversation, error) {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.ParticipatedBy{UserID: userId},
		specification.OrderBy{Field: "last_activity_at", Desc: true},
		specification.OrderBy{Field: "id"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Conversation, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (q *ChatQuery) GetConversation(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	return uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: id})
}

func (q *ChatQuery) ListParticipants(ctx context.Context, conversationId uuid.UUID) ([]entity.Participant, error) {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	participants, err := uow.ParticipantRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "joined_at"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Participant, 0, len(participants))
	for _, p := range participants {
		out = append(out, *p)
	}
	return out, nil
}

func (q *ChatQuery) ListMessages(ctx context.Context, conversationId uuid.UUID) ([]entity.Message, error) {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at"},
		specification.OrderBy{Field: "id"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, *m)
	}
	return out, nil
}

// InsertMessage stores the message, then advances the conversation's activity and preview.
// The second write is best effort; the message row is what the change feed carries.
func (q *ChatQuery) InsertMessage(ctx context.Context, message *entity.Message) error {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return err
	}

	preview := entity.MessagePreview{Content: message.Content, SenderId: message.SenderId}
	if err := uow.ConversationRepository().TouchLastMessage(ctx, message.ConversationId, preview, message.CreatedAt); err != nil {
		q.logger.Warn("CHAT_QUERY", "Failed to update conversation activity", map[string]interface{}{
			"conversation_id": message.ConversationId.String(),
			"message_id":      message.Id.String(),
			"error":           err.Error(),
		})
	}
	return nil
}

func (q *ChatQuery) MarkRead(ctx context.Context, conversationId, readerId uuid.UUID) error {
	uow := q.uowFactory.NewUnitOfWork(ctx)
	_, err := uow.MessageRepository().MarkRead(ctx, conversationId, readerId)
	return err
}

func (q *ChatQuery) FindProfiles(ctx context.Context, ids []uuid.UUID) ([]*entity.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	uow := q.uowFactory.NewUnitOfWork(ctx)
	return uow.ProfileRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
}
