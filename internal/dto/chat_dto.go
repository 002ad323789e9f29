package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateChatRequest struct {
	Title          string      `json:"title" validate:"required,max=255"`
	ParticipantIds []uuid.UUID `json:"participant_ids" validate:"required,min=1,max=256"`
	Labels         []string    `json:"labels" validate:"max=10,dive,max=50"`
}

type CreateChatResponse struct {
	Id   uuid.UUID `json:"id"`
	Kind string    `json:"kind"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type MessageResponse struct {
	Id             uuid.UUID  `json:"id"`
	ConversationId uuid.UUID  `json:"conversation_id"`
	SenderId       uuid.UUID  `json:"sender_id"`
	SenderLabel    string     `json:"sender_label"`
	Content        string     `json:"content"`
	ClientToken    *uuid.UUID `json:"client_token,omitempty"`
	IsRead         bool       `json:"is_read"`
	CreatedAt      time.Time  `json:"created_at"`
	Status         string     `json:"status"`
	FailureReason  string     `json:"failure_reason,omitempty"`
}

type TranscriptResponse struct {
	ConversationId uuid.UUID          `json:"conversation_id"`
	Live           bool               `json:"live"`
	Messages       []*MessageResponse `json:"messages"`
}

type LastMessageResponse struct {
	Content     string    `json:"content"`
	SenderId    uuid.UUID `json:"sender_id"`
	SenderLabel string    `json:"sender_label"`
}

type ConversationSummaryResponse struct {
	Id             uuid.UUID            `json:"id"`
	Title          string               `json:"title"`
	Kind           string               `json:"kind"`
	Labels         []string             `json:"labels"`
	LastMessage    *LastMessageResponse `json:"last_message"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	UnreadCount    int                  `json:"unread_count"`
}

type UserSearchResponse struct {
	Id          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Label       string    `json:"label"`
}

// ViewUpdateMessage is the websocket payload of a "chat.view" frame.
// Clients holding sessions on several instances match session_id against the
// X-Chat-Session header of their REST responses.
type ViewUpdateMessage struct {
	Type           string                         `json:"type"`
	SessionId      uuid.UUID                      `json:"session_id"`
	ConversationId *uuid.UUID                     `json:"conversation_id,omitempty"`
	Live           bool                           `json:"live"`
	Messages       []*MessageResponse             `json:"messages,omitempty"`
	Conversations  []*ConversationSummaryResponse `json:"conversations,omitempty"`
}
