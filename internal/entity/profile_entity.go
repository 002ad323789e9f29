package entity

import "github.com/google/uuid"

type Profile struct {
	Id          uuid.UUID
	DisplayName string
	Email       string
}
