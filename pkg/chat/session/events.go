package session

import (
	"context"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/subscription"
	"realtime-chat-be/pkg/chat/summary"
	"realtime-chat-be/pkg/chat/transcript"

	"github.com/google/uuid"
)

// handleInsert runs on the loop for every event of an active subscription.
func (s *Session) handleInsert(key subscription.Key, ev changefeed.InsertEvent) {
	switch ev.Table {
	case changefeed.TableMessages:
		msg, err := decodeMessage(ev.NewRow)
		if err != nil {
			s.log.Warn("SESSION", "Dropping message event", map[string]interface{}{"error": err.Error()})
			return
		}
		if label, ok := s.resolver.Cached(msg.SenderId); ok {
			msg.SenderLabel = label
			s.applyMessage(msg)
			return
		}
		s.background(func(ctx context.Context) {
			label := s.resolver.Resolve(ctx, msg.SenderId)
			s.post(func() {
				if s.subs.State(key) != subscription.Active {
					return
				}
				msg.SenderLabel = label
				s.applyMessage(msg)
			})
		})

	case changefeed.TableParticipants:
		row, err := decodeParticipant(ev.NewRow)
		if err != nil {
			s.log.Warn("SESSION", "Dropping participant event", map[string]interface{}{"error": err.Error()})
			return
		}
		if row.UserId != s.userId || !s.listOpen || s.summaries.Tracked(row.ConversationId) {
			return
		}
		s.background(func(ctx context.Context) {
			s.joinConversation(ctx, row)
		})
	}
}

// applyMessage feeds a confirmed message to the transcript and the summary list.
func (s *Session) applyMessage(msg entity.Message) {
	activeHere := s.active != nil && s.active.ConversationId() == msg.ConversationId
	if activeHere {
		switch s.active.Reconcile(msg) {
		case transcript.Inserted, transcript.Replaced:
			s.notifyTranscript()
		}
	}

	changed := s.summaries.Upsert(msg.ConversationId, summary.Update{
		MessageId:   msg.Id,
		ClientToken: msg.ClientToken,
		Content:     msg.Content,
		SenderId:    msg.SenderId,
		SenderLabel: msg.SenderLabel,
		OccurredAt:  msg.CreatedAt,
		CountUnread: msg.SenderId != s.userId && !activeHere && !msg.IsRead,
	})
	if changed {
		s.notifyConversations()
	}
}

// joinConversation runs off the loop when the user was added to a conversation.
func (s *Session) joinConversation(ctx context.Context, row participantRow) {
	conv, err := s.backend.GetConversation(ctx, row.ConversationId)
	if err != nil || conv == nil {
		s.log.Warn("SESSION", "Failed to load joined conversation", map[string]interface{}{
			"conversation_id": row.ConversationId.String(),
			"error":           errString(err),
		})
		return
	}
	list := []entity.Conversation{*conv}
	s.labelPreviews(ctx, list)

	s.post(func() {
		if !s.listOpen || s.summaries.Tracked(conv.Id) {
			return
		}
		s.summaries.Track(list[0])
		s.acquireForList(conv.Id)
		s.notifyConversations()
	})
}

func (s *Session) handleFailure(key subscription.Key, err error) {
	update := ViewUpdate{Type: UpdateSubscriptionLost}
	if key.Table == changefeed.TableMessages {
		if id, perr := uuid.Parse(key.Filter.Value); perr == nil {
			update.ConversationId = id
		}
	}
	s.log.Warn("SESSION", "Live updates interrupted", map[string]interface{}{
		"user_id": s.userId.String(),
		"key":     key.String(),
		"error":   err.Error(),
	})
	s.deliver(update)
}

func errString(err error) string {
	if err == nil {
		return "not found"
	}
	return err.Error()
}
