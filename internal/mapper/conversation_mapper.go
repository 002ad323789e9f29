package mapper

import (
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/model"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var preview *entity.MessagePreview
	if c.LastMessageContent != nil {
		preview = &entity.MessagePreview{Content: *c.LastMessageContent}
		if c.LastMessageSenderId != nil {
			preview.SenderId = *c.LastMessageSenderId
		}
	}

	labels := make([]string, len(c.Labels))
	copy(labels, c.Labels)

	return &entity.Conversation{
		Id:             c.Id,
		Title:          c.Title,
		Kind:           entity.ConversationKind(c.Kind),
		Labels:         labels,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
		LastMessage:    preview,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	res := &model.Conversation{
		Id:             c.Id,
		Title:          c.Title,
		Kind:           string(c.Kind),
		Labels:         c.Labels,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
	if c.LastMessage != nil {
		content := c.LastMessage.Content
		sender := c.LastMessage.SenderId
		res.LastMessageContent = &content
		res.LastMessageSenderId = &sender
	}
	return res
}

func (m *ConversationMapper) ConversationsToEntities(models []*model.Conversation) []*entity.Conversation {
	entities := make([]*entity.Conversation, len(models))
	for i, c := range models {
		entities[i] = m.ConversationToEntity(c)
	}
	return entities
}

func (m *ConversationMapper) ParticipantToEntity(p *model.Participant) *entity.Participant {
	if p == nil {
		return nil
	}
	return &entity.Participant{
		ConversationId: p.ConversationId,
		UserId:         p.UserId,
		Role:           entity.ParticipantRole(p.Role),
		JoinedAt:       p.JoinedAt,
	}
}

func (m *ConversationMapper) ParticipantToModel(p *entity.Participant) *model.Participant {
	if p == nil {
		return nil
	}
	return &model.Participant{
		ConversationId: p.ConversationId,
		UserId:         p.UserId,
		Role:           string(p.Role),
		JoinedAt:       p.JoinedAt,
	}
}
