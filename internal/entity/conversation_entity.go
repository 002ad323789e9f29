package entity

import (
	"time"

	"github.com/google/uuid"
)

type ConversationKind string
type ParticipantRole string

const (
	ConversationKindDirect ConversationKind = "direct"
	ConversationKindGroup  ConversationKind = "group"

	ParticipantRoleAdmin  ParticipantRole = "admin"
	ParticipantRoleMember ParticipantRole = "member"
)

// MessagePreview is the cached last message of a conversation.
type MessagePreview struct {
	Content     string
	SenderId    uuid.UUID
	SenderLabel string
}

type Conversation struct {
	Id             uuid.UUID
	Title          string
	Kind           ConversationKind
	Labels         []string
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	LastActivityAt time.Time
	LastMessage    *MessagePreview
}

type Participant struct {
	ConversationId uuid.UUID
	UserId         uuid.UUID
	Role           ParticipantRole
	JoinedAt       time.Time
}
