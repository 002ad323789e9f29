package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileSearchQuery matches email or display name (case-insensitive)
type ProfileSearchQuery struct {
	Query string
}

func (s ProfileSearchQuery) Apply(db *gorm.DB) *gorm.DB {
	pattern := "%" + s.Query + "%"
	return db.Where("email ILIKE ? OR display_name ILIKE ?", pattern, pattern)
}

type ExcludeIDs struct {
	IDs []uuid.UUID
}

func (s ExcludeIDs) Apply(db *gorm.DB) *gorm.DB {
	if len(s.IDs) == 0 {
		return db
	}
	return db.Where("id NOT IN ?", s.IDs)
}
