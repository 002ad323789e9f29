// Package transcript keeps the ordered message list of one conversation and merges
// server history, optimistic local sends and change-feed inserts into it.
package transcript

import (
	"sort"
	"time"

	"realtime-chat-be/internal/entity"

	"github.com/google/uuid"
)

// DefaultTolerance bounds the clock skew accepted when matching a server row to an
// optimistic entry without a client token.
const DefaultTolerance = 5 * time.Second

type Outcome int

const (
	// Inserted means the message was new and placed at its sorted position.
	Inserted Outcome = iota
	// Replaced means an unconfirmed entry was confirmed in place.
	Replaced
	// Duplicate means the message was already present; nothing changed.
	Duplicate
	// Rejected means the message belongs to another conversation.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Store is not safe for concurrent use; it is owned by a session loop.
// Invariant: messages are ordered by CreatedAt, then Id.
type Store struct {
	conversationId uuid.UUID
	tolerance      time.Duration
	messages       []entity.Message
}

func NewStore(conversationId uuid.UUID, tolerance time.Duration) *Store {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Store{conversationId: conversationId, tolerance: tolerance}
}

func (s *Store) ConversationId() uuid.UUID {
	return s.conversationId
}

// Load merges a full history fetch. Optimistic entries sent before the fetch
// completed are reconciled against it rather than duplicated.
func (s *Store) Load(history []entity.Message) []entity.Message {
	for _, m := range history {
		s.Reconcile(m)
	}
	return s.Messages()
}

// AppendOptimistic adds an unconfirmed local message and returns its provisional id.
func (s *Store) AppendOptimistic(m entity.Message) uuid.UUID {
	m.Status = entity.MessageStatusOptimistic
	s.insertSorted(m)
	return m.Id
}

// Reconcile applies a persisted message. An unconfirmed entry carrying the same client
// token, or failing that one with the same sender and content created within the
// tolerance, is confirmed in place. Anything else is inserted at its sorted position.
func (s *Store) Reconcile(server entity.Message) Outcome {
	if server.ConversationId != s.conversationId {
		return Rejected
	}
	server.Status = entity.MessageStatusConfirmed
	server.FailureReason = ""

	if s.isDuplicate(server) {
		return Duplicate
	}

	if idx := s.matchUnconfirmed(server); idx >= 0 {
		s.replace(idx, server)
		return Replaced
	}

	s.insertSorted(server)
	return Inserted
}

func (s *Store) isDuplicate(server entity.Message) bool {
	for _, m := range s.messages {
		if !m.Confirmed() {
			continue
		}
		if m.Id == server.Id {
			return true
		}
		if server.ClientToken != nil && m.ClientToken != nil && *m.ClientToken == *server.ClientToken {
			return true
		}
	}
	return false
}

// matchUnconfirmed returns the index of the unconfirmed entry server confirms, or -1.
func (s *Store) matchUnconfirmed(server entity.Message) int {
	if server.ClientToken != nil {
		for i, m := range s.messages {
			if !m.Confirmed() && m.ClientToken != nil && *m.ClientToken == *server.ClientToken {
				return i
			}
		}
	}

	// messages is sorted, so the first hit is the oldest candidate.
	for i, m := range s.messages {
		if m.Confirmed() {
			continue
		}
		if m.ClientToken != nil && server.ClientToken != nil {
			continue
		}
		if m.SenderId != server.SenderId || m.Content != server.Content {
			continue
		}
		if absDuration(m.CreatedAt.Sub(server.CreatedAt)) <= s.tolerance {
			return i
		}
	}
	return -1
}

func (s *Store) replace(idx int, server entity.Message) {
	prev := s.messages[idx]
	if server.SenderLabel == "" {
		server.SenderLabel = prev.SenderLabel
	}
	if server.ClientToken == nil {
		server.ClientToken = prev.ClientToken
	}
	s.messages[idx] = server
	s.restoreOrder(idx)
}

// restoreOrder moves the entry at idx only as far as needed to restore the ordering
// invariant after its timestamp or id changed.
func (s *Store) restoreOrder(idx int) {
	for idx > 0 && s.messages[idx].Before(s.messages[idx-1]) {
		s.messages[idx], s.messages[idx-1] = s.messages[idx-1], s.messages[idx]
		idx--
	}
	for idx < len(s.messages)-1 && s.messages[idx+1].Before(s.messages[idx]) {
		s.messages[idx], s.messages[idx+1] = s.messages[idx+1], s.messages[idx]
		idx++
	}
}

func (s *Store) insertSorted(m entity.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		return m.Before(s.messages[i])
	})
	s.messages = append(s.messages, entity.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
}

func (s *Store) indexOf(id uuid.UUID) int {
	for i, m := range s.messages {
		if m.Id == id {
			return i
		}
	}
	return -1
}

// MarkFailed flags an unconfirmed entry as failed. The entry stays in place.
func (s *Store) MarkFailed(id uuid.UUID, reason string) bool {
	i := s.indexOf(id)
	if i < 0 || s.messages[i].Confirmed() {
		return false
	}
	s.messages[i].Status = entity.MessageStatusFailed
	s.messages[i].FailureReason = reason
	return true
}

// MarkPending returns a failed entry to the optimistic state for a retry.
func (s *Store) MarkPending(id uuid.UUID) (entity.Message, bool) {
	i := s.indexOf(id)
	if i < 0 || s.messages[i].Status != entity.MessageStatusFailed {
		return entity.Message{}, false
	}
	s.messages[i].Status = entity.MessageStatusOptimistic
	s.messages[i].FailureReason = ""
	return s.messages[i], true
}

// MarkRead sets the read flag on confirmed messages of other senders and returns how many changed.
func (s *Store) MarkRead(readerId uuid.UUID) int {
	n := 0
	for i := range s.messages {
		m := &s.messages[i]
		if m.Confirmed() && !m.IsRead && m.SenderId != readerId {
			m.IsRead = true
			n++
		}
	}
	return n
}

func (s *Store) Get(id uuid.UUID) (entity.Message, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.messages[i], true
	}
	return entity.Message{}, false
}

// Messages returns a copy of the ordered transcript.
func (s *Store) Messages() []entity.Message {
	out := make([]entity.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	return len(s.messages)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
