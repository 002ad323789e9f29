package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

// ParticipatedBy restricts conversations to those the user is a participant of.
type ParticipatedBy struct {
	UserID uuid.UUID
}

func (s ParticipatedBy) Apply(db *gorm.DB) *gorm.DB {
	sub := db.Session(&gorm.Session{NewDB: true}).
		Table("participants").
		Select("conversation_id").
		Where("user_id = ?", s.UserID)
	return db.Where("id IN (?)", sub)
}

// SenderNot excludes messages authored by the given user.
type SenderNot struct {
	UserID uuid.UUID
}

func (s SenderNot) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("sender_id <> ?", s.UserID)
}

type Unread struct{}

func (s Unread) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_read = ?", false)
}
