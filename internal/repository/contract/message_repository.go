package contract

import (
	"context"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	// MarkRead flags messages of other senders in the conversation as read and returns the affected count.
	MarkRead(ctx context.Context, conversationId uuid.UUID, readerId uuid.UUID) (int64, error)
}
