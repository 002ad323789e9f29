package session

import (
	"encoding/json"
	"fmt"
	"time"

	"realtime-chat-be/internal/entity"

	"github.com/google/uuid"
)

// messageRow is the messages row as it appears in change-feed payloads.
type messageRow struct {
	Id             uuid.UUID  `json:"id"`
	ConversationId uuid.UUID  `json:"conversation_id"`
	SenderId       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	ClientToken    *uuid.UUID `json:"client_token"`
	IsRead         bool       `json:"is_read"`
	CreatedAt      time.Time  `json:"created_at"`
}

type participantRow struct {
	ConversationId uuid.UUID `json:"conversation_id"`
	UserId         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
}

func decodeMessage(raw json.RawMessage) (entity.Message, error) {
	var row messageRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return entity.Message{}, fmt.Errorf("malformed message row: %w", err)
	}
	if row.Id == uuid.Nil || row.ConversationId == uuid.Nil {
		return entity.Message{}, fmt.Errorf("message row without id or conversation_id")
	}
	return entity.Message{
		Id:             row.Id,
		ConversationId: row.ConversationId,
		SenderId:       row.SenderId,
		Content:        row.Content,
		ClientToken:    row.ClientToken,
		IsRead:         row.IsRead,
		CreatedAt:      row.CreatedAt.UTC(),
		Status:         entity.MessageStatusConfirmed,
	}, nil
}

func decodeParticipant(raw json.RawMessage) (participantRow, error) {
	var row participantRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return participantRow{}, fmt.Errorf("malformed participant row: %w", err)
	}
	return row, nil
}
