// Package send turns user-authored text into optimistic transcript entries and persists them.
package send

import (
	"context"
	"fmt"
	"strings"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/pkg/chat/chaterr"
	"realtime-chat-be/pkg/chat/summary"
	"realtime-chat-be/pkg/chat/transcript"

	"github.com/google/uuid"
)

// Persister inserts a message and fills in the stored row on success.
type Persister interface {
	InsertMessage(ctx context.Context, message *entity.Message) error
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithTokens(next func() uuid.UUID) Option {
	return func(p *Pipeline) { p.token = next }
}

// Pipeline splits a send into steps so the caller can run the in-memory ones on its
// loop and the persistence call off it.
type Pipeline struct {
	persister Persister
	now       func() time.Time
	token     func() uuid.UUID
}

func NewPipeline(persister Persister, opts ...Option) *Pipeline {
	p := &Pipeline{
		persister: persister,
		// The store keeps microseconds; drafts match what comes back.
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		token:     uuid.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Draft validates text and builds the provisional message. The provisional id doubles
// as the client token carried through persistence.
func (p *Pipeline) Draft(conversationId, senderId uuid.UUID, senderLabel, text string) (entity.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return entity.Message{}, chaterr.Validation("message text is empty")
	}
	token := p.token()
	return entity.Message{
		Id:             token,
		ConversationId: conversationId,
		SenderId:       senderId,
		SenderLabel:    senderLabel,
		Content:        content,
		ClientToken:    &token,
		CreatedAt:      p.now(),
		Status:         entity.MessageStatusOptimistic,
	}, nil
}

// Apply shows the draft in the transcript and moves its conversation to the top of the list.
func (p *Pipeline) Apply(messages *transcript.Store, summaries *summary.Store, draft entity.Message) {
	if messages != nil {
		messages.AppendOptimistic(draft)
	}
	if summaries != nil {
		summaries.Upsert(draft.ConversationId, summary.Update{
			MessageId:   draft.Id,
			Content:     draft.Content,
			SenderId:    draft.SenderId,
			SenderLabel: draft.SenderLabel,
			OccurredAt:  draft.CreatedAt,
		})
	}
}

// Persist inserts the draft. The store assigns the final id.
func (p *Pipeline) Persist(ctx context.Context, draft entity.Message) (entity.Message, error) {
	row := draft
	row.Id = uuid.Nil
	row.Status = ""
	row.SenderLabel = ""
	if err := p.persister.InsertMessage(ctx, &row); err != nil {
		return entity.Message{}, chaterr.Persistence("insert message", err)
	}
	row.SenderLabel = draft.SenderLabel
	return row, nil
}

// Settle records the outcome of Persist. Success is left to the change feed, which
// reconciles the entry; failure flags it and keeps it visible.
func (p *Pipeline) Settle(messages *transcript.Store, provisionalId uuid.UUID, err error) {
	if err == nil || messages == nil {
		return
	}
	messages.MarkFailed(provisionalId, err.Error())
}

// Reopen prepares a failed entry for another Persist.
func (p *Pipeline) Reopen(messages *transcript.Store, provisionalId uuid.UUID) (entity.Message, error) {
	if messages == nil {
		return entity.Message{}, chaterr.ErrNotActive
	}
	m, ok := messages.MarkPending(provisionalId)
	if !ok {
		return entity.Message{}, fmt.Errorf("%w: no failed message %s", chaterr.ErrNotFound, provisionalId)
	}
	return m, nil
}
