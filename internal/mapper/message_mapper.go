package mapper

import (
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/model"
)

type MessageMapper struct{}

func NewMessageMapper() *MessageMapper {
	return &MessageMapper{}
}

// MessageToEntity maps a stored row. Stored rows are always confirmed.
func (m *MessageMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}
	return &entity.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		ClientToken:    msg.ClientToken,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
		Status:         entity.MessageStatusConfirmed,
	}
}

func (m *MessageMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}
	return &model.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		ClientToken:    msg.ClientToken,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *MessageMapper) MessagesToEntities(models []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(models))
	for i, msg := range models {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}
