package contract

import (
	"context"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
	// TouchLastMessage advances last activity and the cached preview. It never moves activity backwards.
	TouchLastMessage(ctx context.Context, id uuid.UUID, preview entity.MessagePreview, at time.Time) error
}

type ParticipantRepository interface {
	CreateBatch(ctx context.Context, participants []*entity.Participant) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Participant, error)
}
