package service

import (
	"realtime-chat-be/internal/dto"
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/pkg/chat/session"
	"realtime-chat-be/pkg/chat/summary"

	"github.com/google/uuid"
)

const ViewMessageType = "chat.view"

// Pusher delivers a typed JSON frame to every socket of a user.
type Pusher interface {
	SendJSON(userID uuid.UUID, msgType string, payload interface{})
}

// ViewNotifier forwards session view updates to the user's websocket connections.
type ViewNotifier struct {
	pusher Pusher
}

func NewViewNotifier(pusher Pusher) *ViewNotifier {
	return &ViewNotifier{pusher: pusher}
}

func (n *ViewNotifier) Deliver(userId uuid.UUID, update session.ViewUpdate) {
	n.pusher.SendJSON(userId, ViewMessageType, ToViewUpdateMessage(update))
}

func ToViewUpdateMessage(update session.ViewUpdate) *dto.ViewUpdateMessage {
	msg := &dto.ViewUpdateMessage{
		Type:      string(update.Type),
		SessionId: update.SessionId,
		Live:      update.Live,
	}
	if update.ConversationId != uuid.Nil {
		id := update.ConversationId
		msg.ConversationId = &id
	}
	switch update.Type {
	case session.UpdateTranscript:
		msg.Messages = ToMessageResponses(update.Messages)
	case session.UpdateConversations:
		msg.Conversations = ToSummaryResponses(update.Conversations)
	}
	return msg
}

func ToMessageResponse(m entity.Message) *dto.MessageResponse {
	return &dto.MessageResponse{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		SenderLabel:    m.SenderLabel,
		Content:        m.Content,
		ClientToken:    m.ClientToken,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
		Status:         string(m.Status),
		FailureReason:  m.FailureReason,
	}
}

func ToMessageResponses(messages []entity.Message) []*dto.MessageResponse {
	res := make([]*dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, ToMessageResponse(m))
	}
	return res
}

func ToTranscriptResponse(view session.TranscriptView) *dto.TranscriptResponse {
	return &dto.TranscriptResponse{
		ConversationId: view.ConversationId,
		Live:           view.Live,
		Messages:       ToMessageResponses(view.Messages),
	}
}

func ToSummaryResponses(summaries []summary.Summary) []*dto.ConversationSummaryResponse {
	res := make([]*dto.ConversationSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		item := &dto.ConversationSummaryResponse{
			Id:             s.ConversationId,
			Title:          s.Title,
			Kind:           string(s.Kind),
			Labels:         s.Labels,
			LastActivityAt: s.LastActivityAt,
			UnreadCount:    s.UnreadCount,
		}
		if item.Labels == nil {
			item.Labels = []string{}
		}
		if s.LastMessage != nil {
			item.LastMessage = &dto.LastMessageResponse{
				Content:     s.LastMessage.Content,
				SenderId:    s.LastMessage.SenderId,
				SenderLabel: s.LastMessage.SenderLabel,
			}
		}
		res = append(res, item)
	}
	return res
}
