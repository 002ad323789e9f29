package model

import "github.com/google/uuid"

// Profile is the read-only directory row used to label senders.
type Profile struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	Email       string    `gorm:"type:varchar(255);index" json:"email"`
}

func (Profile) TableName() string {
	return "profiles"
}
