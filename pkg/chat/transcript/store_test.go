package transcript

import (
	"testing"
	"time"

	"realtime-chat-be/internal/entity"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	convID = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	alice  = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	bob    = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	base   = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func serverMsg(id string, sender uuid.UUID, content string, at time.Time) entity.Message {
	return entity.Message{
		Id:             uuid.MustParse(id),
		ConversationId: convID,
		SenderId:       sender,
		Content:        content,
		CreatedAt:      at,
		Status:         entity.MessageStatusConfirmed,
	}
}

func optimistic(sender uuid.UUID, content string, at time.Time) entity.Message {
	token := uuid.New()
	return entity.Message{
		Id:             token,
		ConversationId: convID,
		SenderId:       sender,
		Content:        content,
		ClientToken:    &token,
		CreatedAt:      at,
	}
}

func ids(msgs []entity.Message) []uuid.UUID {
	out := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		out[i] = m.Id
	}
	return out
}

func TestReconcileOrdersByCreationTime(t *testing.T) {
	m1 := serverMsg("00000000-0000-0000-0000-000000000001", bob, "first", base)
	m2 := serverMsg("00000000-0000-0000-0000-000000000002", bob, "second", base.Add(time.Second))
	m3 := serverMsg("00000000-0000-0000-0000-000000000003", alice, "third", base.Add(2*time.Second))
	// Same timestamp as m3, ordered by id.
	m4 := serverMsg("00000000-0000-0000-0000-000000000000", alice, "tie", base.Add(2*time.Second))
	want := []uuid.UUID{m1.Id, m2.Id, m4.Id, m3.Id}

	orders := map[string][]entity.Message{
		"in order":  {m1, m2, m4, m3},
		"reversed":  {m3, m4, m2, m1},
		"shuffled":  {m2, m3, m1, m4},
		"tie first": {m4, m1, m3, m2},
	}
	for name, arrival := range orders {
		t.Run(name, func(t *testing.T) {
			s := NewStore(convID, 0)
			for _, m := range arrival {
				assert.Equal(t, Inserted, s.Reconcile(m))
			}
			if diff := cmp.Diff(want, ids(s.Messages())); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLateEventIsInsertedBeforeLaterOne(t *testing.T) {
	s := NewStore(convID, 0)
	m1 := serverMsg("00000000-0000-0000-0000-000000000001", bob, "M1", base)
	m2 := serverMsg("00000000-0000-0000-0000-000000000002", bob, "M2", base.Add(time.Second))

	s.Reconcile(m2)
	s.Reconcile(m1)

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "M1", got[0].Content)
	assert.Equal(t, "M2", got[1].Content)
}

func TestReconcileIsIdempotent(t *testing.T) {
	s := NewStore(convID, 0)
	m1 := serverMsg("00000000-0000-0000-0000-000000000001", bob, "hi", base)
	m2 := serverMsg("00000000-0000-0000-0000-000000000002", alice, "yo", base.Add(time.Second))
	s.Reconcile(m1)
	s.Reconcile(m2)
	before := s.Messages()

	assert.Equal(t, Duplicate, s.Reconcile(m1))
	assert.Equal(t, Duplicate, s.Reconcile(m2))

	if diff := cmp.Diff(before, s.Messages()); diff != "" {
		t.Errorf("replay changed transcript (-before +after):\n%s", diff)
	}
}

func TestOptimisticReplacedInPlaceByToken(t *testing.T) {
	s := NewStore(convID, 0)
	s.Reconcile(serverMsg("00000000-0000-0000-0000-000000000001", bob, "earlier", base))
	draft := optimistic(alice, "Hello", base.Add(time.Second))
	draft.SenderLabel = "alice"
	provisional := s.AppendOptimistic(draft)

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, entity.MessageStatusOptimistic, got[1].Status)

	confirmed := serverMsg("00000000-0000-0000-0000-0000000000ff", alice, "Hello", base.Add(1500*time.Millisecond))
	confirmed.ClientToken = draft.ClientToken

	assert.Equal(t, Replaced, s.Reconcile(confirmed))
	got = s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, confirmed.Id, got[1].Id)
	assert.Equal(t, entity.MessageStatusConfirmed, got[1].Status)
	assert.Equal(t, "alice", got[1].SenderLabel, "label kept when the row has none")
	_, stillThere := s.Get(provisional)
	assert.False(t, stillThere)

	// The echo of the same row is a duplicate.
	assert.Equal(t, Duplicate, s.Reconcile(confirmed))
	assert.Equal(t, 2, s.Len())
}

func TestHeuristicMatchWithoutToken(t *testing.T) {
	s := NewStore(convID, 5*time.Second)
	s.AppendOptimistic(optimistic(alice, "ping", base))

	tests := []struct {
		name    string
		msg     entity.Message
		outcome Outcome
	}{
		{"other sender", serverMsg("00000000-0000-0000-0000-000000000010", bob, "ping", base), Inserted},
		{"other content", serverMsg("00000000-0000-0000-0000-000000000011", alice, "pong", base), Inserted},
		{"outside tolerance", serverMsg("00000000-0000-0000-0000-000000000012", alice, "ping", base.Add(6*time.Second)), Inserted},
		{"match", serverMsg("00000000-0000-0000-0000-000000000013", alice, "ping", base.Add(3*time.Second)), Replaced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, s.Reconcile(tt.msg))
		})
	}

	for _, m := range s.Messages() {
		assert.Equal(t, entity.MessageStatusConfirmed, m.Status)
	}
	assert.Equal(t, 4, s.Len())
}

func TestTokenMismatchDoesNotFallBackToHeuristic(t *testing.T) {
	s := NewStore(convID, 0)
	s.AppendOptimistic(optimistic(alice, "same", base))

	other := serverMsg("00000000-0000-0000-0000-000000000020", alice, "same", base)
	otherToken := uuid.New()
	other.ClientToken = &otherToken

	assert.Equal(t, Inserted, s.Reconcile(other))
	assert.Equal(t, 2, s.Len())
}

func TestRapidDuplicateSendsNeverRenderTwice(t *testing.T) {
	s := NewStore(convID, 0)
	a := optimistic(alice, "ok", base)
	b := optimistic(alice, "ok", base.Add(10*time.Millisecond))
	s.AppendOptimistic(a)
	s.AppendOptimistic(b)

	ra := serverMsg("00000000-0000-0000-0000-000000000031", alice, "ok", base.Add(20*time.Millisecond))
	ra.ClientToken = a.ClientToken
	rb := serverMsg("00000000-0000-0000-0000-000000000032", alice, "ok", base.Add(30*time.Millisecond))
	rb.ClientToken = b.ClientToken

	s.Reconcile(rb)
	s.Reconcile(ra)
	s.Reconcile(rb)

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, []uuid.UUID{ra.Id, rb.Id}, ids(got))
}

func TestFailedEntryStaysVisible(t *testing.T) {
	s := NewStore(convID, 0)
	id := s.AppendOptimistic(optimistic(alice, "lost", base))

	require.True(t, s.MarkFailed(id, "insert failed"))

	m, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, entity.MessageStatusFailed, m.Status)
	assert.Equal(t, "insert failed", m.FailureReason)
	assert.Equal(t, 1, s.Len())

	pending, ok := s.MarkPending(id)
	require.True(t, ok)
	assert.Equal(t, entity.MessageStatusOptimistic, pending.Status)
	assert.Empty(t, pending.FailureReason)

	_, ok = s.MarkPending(id)
	assert.False(t, ok, "only failed entries can be reopened")
}

func TestFailedEntryCanStillBeConfirmed(t *testing.T) {
	s := NewStore(convID, 0)
	draft := optimistic(alice, "late ack", base)
	id := s.AppendOptimistic(draft)
	s.MarkFailed(id, "timeout")

	row := serverMsg("00000000-0000-0000-0000-000000000040", alice, "late ack", base)
	row.ClientToken = draft.ClientToken
	assert.Equal(t, Replaced, s.Reconcile(row))

	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, entity.MessageStatusConfirmed, got[0].Status)
	assert.Empty(t, got[0].FailureReason)
	assert.False(t, s.MarkFailed(row.Id, "x"), "confirmed entries cannot fail")
}

func TestLoadMergesPendingSend(t *testing.T) {
	s := NewStore(convID, 0)
	draft := optimistic(alice, "sent while loading", base.Add(time.Minute))
	s.AppendOptimistic(draft)

	row := serverMsg("00000000-0000-0000-0000-000000000050", alice, "sent while loading", base.Add(time.Minute))
	row.ClientToken = draft.ClientToken
	history := []entity.Message{
		serverMsg("00000000-0000-0000-0000-000000000051", bob, "old", base),
		row,
	}

	got := s.Load(history)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].Content)
	assert.Equal(t, row.Id, got[1].Id)
}

func TestRejectsOtherConversation(t *testing.T) {
	s := NewStore(convID, 0)
	m := serverMsg("00000000-0000-0000-0000-000000000060", bob, "elsewhere", base)
	m.ConversationId = uuid.New()

	assert.Equal(t, Rejected, s.Reconcile(m))
	assert.Zero(t, s.Len())
}

func TestMarkRead(t *testing.T) {
	s := NewStore(convID, 0)
	s.Reconcile(serverMsg("00000000-0000-0000-0000-000000000070", bob, "a", base))
	s.Reconcile(serverMsg("00000000-0000-0000-0000-000000000071", alice, "b", base.Add(time.Second)))
	s.AppendOptimistic(optimistic(bob, "c", base.Add(2*time.Second)))

	assert.Equal(t, 1, s.MarkRead(alice))
	assert.Equal(t, 0, s.MarkRead(alice))
}
