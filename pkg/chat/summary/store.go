// Package summary keeps one entry per conversation of the signed-in user, ordered by last activity.
package summary

import (
	"bytes"
	"sort"
	"time"

	"realtime-chat-be/internal/entity"

	"github.com/google/uuid"
)

type Summary struct {
	ConversationId uuid.UUID
	Title          string
	Kind           entity.ConversationKind
	Labels         []string
	LastMessage    *entity.MessagePreview
	LastMessageId  uuid.UUID
	LastActivityAt time.Time
	UnreadCount    int
}

// Update describes one message landing in a conversation.
type Update struct {
	MessageId uuid.UUID
	// ClientToken links a confirmed message to the optimistic preview it supersedes.
	ClientToken *uuid.UUID
	Content     string
	SenderId    uuid.UUID
	SenderLabel string
	OccurredAt  time.Time
	CountUnread bool
}

type entry struct {
	Summary
	counted map[uuid.UUID]struct{}
}

// Store is owned by a session loop and is not safe for concurrent use.
type Store struct {
	entries map[uuid.UUID]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[uuid.UUID]*entry)}
}

// Seed tracks every conversation in a list fetch.
func (s *Store) Seed(conversations []entity.Conversation) {
	for _, c := range conversations {
		s.Track(c)
	}
}

// Track adds a conversation or refreshes its metadata. Activity never moves backwards.
func (s *Store) Track(c entity.Conversation) {
	e, ok := s.entries[c.Id]
	if !ok {
		e = &entry{
			Summary: Summary{ConversationId: c.Id},
			counted: make(map[uuid.UUID]struct{}),
		}
		s.entries[c.Id] = e
	}
	e.Title = c.Title
	e.Kind = c.Kind
	e.Labels = append([]string(nil), c.Labels...)
	if c.LastActivityAt.After(e.LastActivityAt) {
		e.LastActivityAt = c.LastActivityAt
		if c.LastMessage != nil {
			preview := *c.LastMessage
			e.LastMessage = &preview
		}
	}
	if e.LastMessage == nil && c.LastMessage != nil {
		preview := *c.LastMessage
		e.LastMessage = &preview
	}
}

func (s *Store) Tracked(id uuid.UUID) bool {
	_, ok := s.entries[id]
	return ok
}

// Upsert applies a message to its conversation's summary and reports whether anything changed.
// Replaying an update is a no-op, and an update older than the current preview only
// counts towards unread.
func (s *Store) Upsert(conversationId uuid.UUID, u Update) bool {
	e, ok := s.entries[conversationId]
	if !ok {
		return false
	}

	changed := false
	if u.CountUnread {
		if _, seen := e.counted[u.MessageId]; !seen {
			e.counted[u.MessageId] = struct{}{}
			e.UnreadCount++
			changed = true
		}
	}

	if e.LastMessageId == u.MessageId && e.LastMessageId != uuid.Nil {
		return changed
	}

	supersedes := u.ClientToken != nil && e.LastMessageId == *u.ClientToken
	if !supersedes && u.OccurredAt.Before(e.LastActivityAt) {
		return changed
	}

	e.LastMessage = &entity.MessagePreview{
		Content:     u.Content,
		SenderId:    u.SenderId,
		SenderLabel: u.SenderLabel,
	}
	e.LastMessageId = u.MessageId
	if u.OccurredAt.After(e.LastActivityAt) {
		e.LastActivityAt = u.OccurredAt
	}
	return true
}

// MarkRead clears the unread count. Messages already counted are not counted again.
func (s *Store) MarkRead(conversationId uuid.UUID) bool {
	e, ok := s.entries[conversationId]
	if !ok || e.UnreadCount == 0 {
		return false
	}
	e.UnreadCount = 0
	return true
}

func (s *Store) Get(id uuid.UUID) (Summary, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Summary{}, false
	}
	return e.snapshot(), true
}

// List returns every summary, most recent activity first, ties by conversation id.
func (s *Store) List() []Summary {
	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return bytes.Compare(out[i].ConversationId[:], out[j].ConversationId[:]) < 0
	})
	return out
}

func (s *Store) Len() int {
	return len(s.entries)
}

func (e *entry) snapshot() Summary {
	out := e.Summary
	out.Labels = append([]string(nil), e.Labels...)
	if e.LastMessage != nil {
		preview := *e.LastMessage
		out.LastMessage = &preview
	}
	return out
}
