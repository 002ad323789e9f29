package entity

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type MessageStatus string

const (
	MessageStatusOptimistic MessageStatus = "optimistic"
	MessageStatusConfirmed  MessageStatus = "confirmed"
	MessageStatusFailed     MessageStatus = "failed"
)

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	SenderId       uuid.UUID
	SenderLabel    string
	Content        string
	// ClientToken is generated by the sending client and echoed back by the store.
	ClientToken   *uuid.UUID
	IsRead        bool
	CreatedAt     time.Time
	Status        MessageStatus
	FailureReason string
}

// Confirmed reports whether the message has been observed as a persisted row.
func (m Message) Confirmed() bool {
	return m.Status == MessageStatusConfirmed
}

// Before orders messages by creation time, then by identifier.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return bytes.Compare(m.Id[:], other.Id[:]) < 0
}
