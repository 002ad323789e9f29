package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Conversation struct {
	Id                  uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title               string                      `gorm:"type:text" json:"title"`
	Kind                string                      `gorm:"type:varchar(20);not null;default:'direct'" json:"kind"`
	Labels              datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"labels"`
	CreatedBy           uuid.UUID                   `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	LastActivityAt      time.Time                   `gorm:"not null;index:idx_conversations_last_activity,sort:desc" json:"last_activity_at"`
	LastMessageContent  *string                     `gorm:"type:text" json:"last_message_content"`
	LastMessageSenderId *uuid.UUID                  `gorm:"type:uuid" json:"last_message_sender_id"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type Participant struct {
	ConversationId uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserId         uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	Role           string    `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (Participant) TableName() string {
	return "participants"
}
