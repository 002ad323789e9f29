package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationId uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderId       uuid.UUID  `gorm:"type:uuid;not null" json:"sender_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	ClientToken    *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"client_token"`
	IsRead         bool       `gorm:"not null;default:false" json:"is_read"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
