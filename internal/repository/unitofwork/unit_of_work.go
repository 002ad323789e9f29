package unitofwork

import (
	"realtime-chat-be/internal/repository/contract"
)

// UnitOfWork groups repository accessors over one connection.
// The store offers no multi-statement transactions, so there is no Begin/Commit.
type UnitOfWork interface {
	ConversationRepository() contract.ConversationRepository
	ParticipantRepository() contract.ParticipantRepository
	MessageRepository() contract.MessageRepository
	ProfileRepository() contract.ProfileRepository
}
