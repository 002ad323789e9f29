package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/model"
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/chaterr"
	"realtime-chat-be/pkg/chat/profile"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	me    = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	peer  = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	convA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	convB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	t0    = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

// fakeBackend stores rows in memory and publishes inserts the way the gorm plugin does.
type fakeBackend struct {
	mu            sync.Mutex
	feed          *changefeed.MemoryFeed
	conversations map[uuid.UUID]entity.Conversation
	participants  map[uuid.UUID][]entity.Participant
	messages      map[uuid.UUID][]entity.Message
	profiles      map[uuid.UUID]*entity.Profile
	insertErr     error
	inserts       int
	// insertGate, when set, holds InsertMessage until it is closed.
	insertGate    chan struct{}
	insertStarted chan struct{}
	afterList     func()
}

func newFakeBackend(feed *changefeed.MemoryFeed) *fakeBackend {
	b := &fakeBackend{
		feed:          feed,
		conversations: make(map[uuid.UUID]entity.Conversation),
		participants:  make(map[uuid.UUID][]entity.Participant),
		messages:      make(map[uuid.UUID][]entity.Message),
		profiles: map[uuid.UUID]*entity.Profile{
			me:   {Id: me, DisplayName: "Me"},
			peer: {Id: peer, Email: "peer.person@example.com"},
		},
	}
	b.addConversation(convA, t0, me, peer)
	b.addConversation(convB, t0.Add(time.Minute), me, peer)
	return b
}

func (b *fakeBackend) addConversation(id uuid.UUID, at time.Time, members ...uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[id] = entity.Conversation{Id: id, Title: id.String()[:8], Kind: entity.ConversationKindDirect, LastActivityAt: at}
	for _, m := range members {
		b.participants[id] = append(b.participants[id], entity.Participant{ConversationId: id, UserId: m, Role: entity.ParticipantRoleMember})
	}
}

func (b *fakeBackend) ListConversations(_ context.Context, userId uuid.UUID) ([]entity.Conversation, error) {
	b.mu.Lock()
	var out []entity.Conversation
	for id, c := range b.conversations {
		for _, p := range b.participants[id] {
			if p.UserId == userId {
				out = append(out, c)
			}
		}
	}
	hook := b.afterList
	b.afterList = nil
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (b *fakeBackend) GetConversation(_ context.Context, id uuid.UUID) (*entity.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (b *fakeBackend) ListParticipants(_ context.Context, id uuid.UUID) ([]entity.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.Participant(nil), b.participants[id]...), nil
}

func (b *fakeBackend) ListMessages(_ context.Context, id uuid.UUID) ([]entity.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.Message(nil), b.messages[id]...), nil
}

func (b *fakeBackend) InsertMessage(ctx context.Context, m *entity.Message) error {
	b.mu.Lock()
	gate, started := b.insertGate, b.insertStarted
	b.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	b.mu.Lock()
	if b.insertErr != nil {
		b.mu.Unlock()
		return b.insertErr
	}
	b.inserts++
	m.Id = uuid.New()
	m.Status = entity.MessageStatusConfirmed
	b.messages[m.ConversationId] = append(b.messages[m.ConversationId], *m)
	b.mu.Unlock()

	return b.publishMessage(ctx, *m)
}

func (b *fakeBackend) publishMessage(ctx context.Context, m entity.Message) error {
	ev, err := changefeed.NewInsertEvent(changefeed.TableMessages, model.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		ClientToken:    m.ClientToken,
		CreatedAt:      m.CreatedAt,
	}, time.Now())
	if err != nil {
		return err
	}
	return b.feed.Publish(ctx, ev)
}

// receive stores a peer message and bumps the conversation the way a commit would.
func (b *fakeBackend) receive(ctx context.Context, conversationId uuid.UUID, at time.Time, content string) error {
	m := entity.Message{Id: uuid.New(), ConversationId: conversationId, SenderId: peer, Content: content, CreatedAt: at, Status: entity.MessageStatusConfirmed}
	b.mu.Lock()
	b.messages[conversationId] = append(b.messages[conversationId], m)
	c := b.conversations[conversationId]
	c.LastActivityAt = at
	c.LastMessage = &entity.MessagePreview{Content: content, SenderId: peer}
	b.conversations[conversationId] = c
	b.mu.Unlock()
	return b.publishMessage(ctx, m)
}

func (b *fakeBackend) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (b *fakeBackend) FindProfiles(_ context.Context, ids []uuid.UUID) ([]*entity.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*entity.Profile
	for _, id := range ids {
		if p, ok := b.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type updates struct {
	mu  sync.Mutex
	all []ViewUpdate
}

func (u *updates) Deliver(_ uuid.UUID, update ViewUpdate) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.all = append(u.all, update)
}

func (u *updates) ofType(typ UpdateType) []ViewUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []ViewUpdate
	for _, v := range u.all {
		if v.Type == typ {
			out = append(out, v)
		}
	}
	return out
}

type harness struct {
	feed    *changefeed.MemoryFeed
	backend *fakeBackend
	updates *updates
	session *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithFeed(t, nil)
}

// newHarnessWithFeed lets wrap put a feed between the session and the memory feed.
func newHarnessWithFeed(t *testing.T, wrap func(*changefeed.MemoryFeed) changefeed.Feed) *harness {
	t.Helper()
	feed := changefeed.NewMemoryFeed(nil)
	backend := newFakeBackend(feed)
	ups := &updates{}
	var sessionFeed changefeed.Feed = feed
	if wrap != nil {
		sessionFeed = wrap(feed)
	}
	s := New(me, Deps{
		Backend:  backend,
		Feed:     sessionFeed,
		Resolver: profile.NewResolver(backend, time.Minute, logger.NewNopLogger()),
		Notifier: ups,
		Logger:   logger.NewNopLogger(),
	})
	return &harness{feed: feed, backend: backend, updates: ups, session: s}
}

func (h *harness) close() {
	h.session.Close()
	h.feed.Close()
}

func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func TestSendHelloScenario(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenList(ctx)
	require.NoError(t, err)
	view, err := h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)
	assert.Empty(t, view.Messages)
	assert.True(t, view.Live)

	stored, err := h.session.Send(ctx, convA, "Hello")
	require.NoError(t, err)

	// First transcript push after the send is the optimistic entry.
	pushes := h.updates.ofType(UpdateTranscript)
	require.NotEmpty(t, pushes)
	var optimistic *entity.Message
	for _, p := range pushes {
		if len(p.Messages) == 1 {
			optimistic = &p.Messages[0]
			break
		}
	}
	require.NotNil(t, optimistic)
	assert.Equal(t, entity.MessageStatusOptimistic, optimistic.Status)
	assert.Equal(t, "Hello", optimistic.Content)

	view, err = h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	got := view.Messages[0]
	assert.Equal(t, entity.MessageStatusConfirmed, got.Status)
	assert.Equal(t, stored.Id, got.Id)
	assert.NotEqual(t, optimistic.Id, got.Id)
	assert.Equal(t, "Me", got.SenderLabel)

	list, err := h.session.Conversations(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, convA, list[0].ConversationId)
	assert.Equal(t, "Hello", list[0].LastMessage.Content)
	for _, u := range h.updates.ofType(UpdateTranscript) {
		assert.Equal(t, h.session.Id(), u.SessionId)
	}
}

func TestSendMovesConversationToTopBeforeConfirmation(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	list, err := h.session.OpenList(ctx)
	require.NoError(t, err)
	require.Equal(t, convB, list[0].ConversationId)
	_, err = h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)

	h.backend.mu.Lock()
	h.backend.insertErr = errors.New("slow network gave up")
	h.backend.mu.Unlock()

	_, err = h.session.Send(ctx, convA, "first!")
	require.Error(t, err)

	lists := h.updates.ofType(UpdateConversations)
	require.NotEmpty(t, lists)
	top := lists[len(lists)-1].Conversations[0]
	assert.Equal(t, convA, top.ConversationId, "optimistic preview reorders the list without any confirmation")
}

func TestFailedSendStaysVisibleAndRetries(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)

	h.backend.mu.Lock()
	h.backend.insertErr = errors.New("connection refused")
	h.backend.mu.Unlock()

	failed, err := h.session.Send(ctx, convA, "are you there?")
	require.ErrorIs(t, err, chaterr.ErrPersistence)
	assert.Equal(t, entity.MessageStatusFailed, failed.Status)

	view, err := h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, entity.MessageStatusFailed, view.Messages[0].Status)

	h.backend.mu.Lock()
	h.backend.insertErr = nil
	h.backend.mu.Unlock()

	_, err = h.session.Retry(ctx, convA, failed.Id)
	require.NoError(t, err)

	view, err = h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, entity.MessageStatusConfirmed, view.Messages[0].Status)
}

func TestSendValidation(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.Send(ctx, convA, "hi")
	assert.ErrorIs(t, err, chaterr.ErrNotActive)

	_, err = h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)
	_, err = h.session.Send(ctx, convA, "   ")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
	assert.Zero(t, h.backend.inserts)
}

func TestReopeningConversationKeepsOneSubscription(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.session.OpenConversation(ctx, convA)
		require.NoError(t, err)
		_, err = h.session.OpenConversation(ctx, convA)
		require.NoError(t, err)

		n, err := h.session.ActiveSubscriptions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, h.feed.Subscribers())

		require.NoError(t, h.session.CloseConversation(ctx, convA))
		require.NoError(t, h.session.CloseConversation(ctx, convA))
		assert.Zero(t, h.feed.Subscribers())
	}

	// One insert yields one transcript entry.
	_, err := h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)
	require.NoError(t, h.backend.publishMessage(ctx, entity.Message{Id: uuid.New(), ConversationId: convA, SenderId: peer, Content: "once", CreatedAt: t0}))
	assert.Eventually(t, func() bool {
		view, err := h.session.Transcript(ctx, convA)
		return err == nil && len(view.Messages) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestOutOfOrderEventsAreSorted(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)

	m1 := entity.Message{Id: uuid.New(), ConversationId: convA, SenderId: peer, Content: "M1", CreatedAt: t0}
	m2 := entity.Message{Id: uuid.New(), ConversationId: convA, SenderId: peer, Content: "M2", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, h.backend.publishMessage(ctx, m2))
	require.NoError(t, h.backend.publishMessage(ctx, m1))

	require.Eventually(t, func() bool {
		view, err := h.session.Transcript(ctx, convA)
		return err == nil && len(view.Messages) == 2
	}, time.Second, 10*time.Millisecond)

	view, _ := h.session.Transcript(ctx, convA)
	assert.Equal(t, "M1", view.Messages[0].Content)
	assert.Equal(t, "M2", view.Messages[1].Content)
	assert.Equal(t, "peer", view.Messages[0].SenderLabel)
}

func TestIncomingMessageCountsUnreadOutsideActiveTranscript(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenList(ctx)
	require.NoError(t, err)

	msg := entity.Message{Id: uuid.New(), ConversationId: convA, SenderId: peer, Content: "ping", CreatedAt: t0.Add(time.Hour)}
	require.NoError(t, h.backend.publishMessage(ctx, msg))
	require.NoError(t, h.backend.publishMessage(ctx, msg))

	require.Eventually(t, func() bool {
		list, err := h.session.Conversations(ctx)
		return err == nil && len(list) == 2 && list[0].ConversationId == convA
	}, time.Second, 10*time.Millisecond)

	list, _ := h.session.Conversations(ctx)
	assert.Equal(t, 1, list[0].UnreadCount, "replayed event counted once")

	require.NoError(t, h.session.MarkRead(ctx, convA))
	list, _ = h.session.Conversations(ctx)
	assert.Zero(t, list[0].UnreadCount)
}

func TestJoiningConversationAddsItToList(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenList(ctx)
	require.NoError(t, err)
	before, _ := h.session.ActiveSubscriptions(ctx)

	convC := uuid.New()
	h.backend.addConversation(convC, t0.Add(time.Hour), peer, me)
	ev, err := changefeed.NewInsertEvent(changefeed.TableParticipants, model.Participant{ConversationId: convC, UserId: me, Role: "member"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.feed.Publish(ctx, ev))

	require.Eventually(t, func() bool {
		list, err := h.session.Conversations(ctx)
		return err == nil && len(list) == 3 && list[0].ConversationId == convC
	}, time.Second, 10*time.Millisecond)

	after, _ := h.session.ActiveSubscriptions(ctx)
	assert.Equal(t, before+1, after)

	require.NoError(t, h.session.CloseList(ctx))
	n, _ := h.session.ActiveSubscriptions(ctx)
	assert.Zero(t, n)
}

func TestOpenConversationRequiresMembership(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()

	other := uuid.New()
	h.backend.addConversation(other, t0, peer)

	_, err := h.session.OpenConversation(context.Background(), other)
	assert.ErrorIs(t, err, chaterr.ErrNotFound)
}

func TestClosedSessionRejectsCalls(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	_, err := h.session.OpenConversation(context.Background(), convA)
	require.NoError(t, err)

	h.session.Close()
	h.session.Close()

	_, err = h.session.Conversations(context.Background())
	assert.ErrorIs(t, err, chaterr.ErrSessionClosed)
	assert.Zero(t, h.feed.Subscribers())
}

// flakyFeed refuses or breaks subscriptions on demand, keyed by filter value.
type flakyFeed struct {
	changefeed.Feed
	mu      sync.Mutex
	refuse  map[string]int
	onError map[string]func(error)
}

func newFlakyFeed(inner changefeed.Feed) *flakyFeed {
	return &flakyFeed{
		Feed:    inner,
		refuse:  make(map[string]int),
		onError: make(map[string]func(error)),
	}
}

func (f *flakyFeed) Subscribe(ctx context.Context, table string, filter changefeed.Filter, onInsert func(changefeed.InsertEvent), onError func(error)) (changefeed.Handle, error) {
	f.mu.Lock()
	if f.refuse[filter.Value] > 0 {
		f.refuse[filter.Value]--
		f.mu.Unlock()
		return nil, errors.New("feed unavailable")
	}
	f.onError[filter.Value] = onError
	f.mu.Unlock()
	return f.Feed.Subscribe(ctx, table, filter, onInsert, onError)
}

func (f *flakyFeed) breakStream(value string, err error) {
	f.mu.Lock()
	fn := f.onError[value]
	f.mu.Unlock()
	fn(err)
}

func transcriptHas(ctx context.Context, s *Session, conversationId uuid.UUID, n int) func() bool {
	return func() bool {
		view, err := s.Transcript(ctx, conversationId)
		return err == nil && len(view.Messages) == n
	}
}

func TestOpenListCatchesActivityCommittedDuringLoad(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	h.backend.mu.Lock()
	h.backend.afterList = func() {
		// Committed after the first fetch and before any subscription exists.
		if err := h.backend.receive(ctx, convA, t0.Add(time.Hour), "missed"); err != nil {
			t.Error(err)
		}
	}
	h.backend.mu.Unlock()

	list, err := h.session.OpenList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, convA, list[0].ConversationId)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "missed", list[0].LastMessage.Content)
	assert.Equal(t, "peer", list[0].LastMessage.SenderLabel)

	n, err := h.session.ActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPersistCompletionAfterTranscriptMovedOnIsIgnored(t *testing.T) {
	cases := []struct {
		name      string
		insertErr error
	}{
		{name: "stored", insertErr: nil},
		{name: "failed", insertErr: errors.New("connection reset")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer verifyNoLeaks(t)
			h := newHarness(t)
			defer h.close()
			ctx := context.Background()

			_, err := h.session.OpenConversation(ctx, convA)
			require.NoError(t, err)

			gate := make(chan struct{})
			started := make(chan struct{}, 1)
			h.backend.mu.Lock()
			h.backend.insertGate = gate
			h.backend.insertStarted = started
			h.backend.insertErr = tc.insertErr
			h.backend.mu.Unlock()

			type result struct {
				msg entity.Message
				err error
			}
			done := make(chan result, 1)
			go func() {
				m, err := h.session.Send(ctx, convA, "late")
				done <- result{msg: m, err: err}
			}()
			<-started

			require.NoError(t, h.session.CloseConversation(ctx, convA))
			_, err = h.session.OpenConversation(ctx, convB)
			require.NoError(t, err)
			before, err := h.session.Transcript(ctx, convB)
			require.NoError(t, err)
			pushes := len(h.updates.ofType(UpdateTranscript))

			close(gate)
			res := <-done

			assert.Equal(t, convA, res.msg.ConversationId)
			assert.Equal(t, "late", res.msg.Content)
			if tc.insertErr != nil {
				assert.ErrorIs(t, res.err, chaterr.ErrPersistence)
				assert.Equal(t, entity.MessageStatusFailed, res.msg.Status)
			} else {
				require.NoError(t, res.err)
				assert.Equal(t, entity.MessageStatusConfirmed, res.msg.Status)
			}

			after, err := h.session.Transcript(ctx, convB)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Empty(t, after.Messages)
			assert.Len(t, h.updates.ofType(UpdateTranscript), pushes)
		})
	}
}

func TestLostSubscriptionKeepsHistoryAndRecovers(t *testing.T) {
	defer verifyNoLeaks(t)
	var flaky *flakyFeed
	h := newHarnessWithFeed(t, func(f *changefeed.MemoryFeed) changefeed.Feed {
		flaky = newFlakyFeed(f)
		return flaky
	})
	defer h.close()
	ctx := context.Background()

	_, err := h.session.OpenList(ctx)
	require.NoError(t, err)
	_, err = h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)

	require.NoError(t, h.backend.receive(ctx, convA, t0.Add(time.Hour), "before"))
	require.Eventually(t, transcriptHas(ctx, h.session, convA, 1), time.Second, 10*time.Millisecond)

	flaky.breakStream(convA.String(), errors.New("connection reset"))
	require.Eventually(t, func() bool {
		return len(h.updates.ofType(UpdateSubscriptionLost)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, convA, h.updates.ofType(UpdateSubscriptionLost)[0].ConversationId)

	view, err := h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "before", view.Messages[0].Content)
	assert.False(t, view.Live)

	// Other conversations keep receiving events.
	require.NoError(t, h.backend.receive(ctx, convB, t0.Add(2*time.Hour), "elsewhere"))
	require.Eventually(t, func() bool {
		list, err := h.session.Conversations(ctx)
		return err == nil && list[0].ConversationId == convB && list[0].UnreadCount == 1
	}, time.Second, 10*time.Millisecond)

	// Sends still settle although no echo can arrive.
	stored, err := h.session.Send(ctx, convA, "still here")
	require.NoError(t, err)
	view, err = h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	var settled *entity.Message
	for i := range view.Messages {
		if view.Messages[i].Id == stored.Id {
			settled = &view.Messages[i]
		}
	}
	require.NotNil(t, settled)
	assert.Equal(t, entity.MessageStatusConfirmed, settled.Status)

	require.NoError(t, h.session.Resubscribe(ctx, convA))
	view, err = h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	assert.True(t, view.Live)

	require.NoError(t, h.backend.receive(ctx, convA, t0.Add(3*time.Hour), "after"))
	assert.Eventually(t, transcriptHas(ctx, h.session, convA, 3), time.Second, 10*time.Millisecond)
}

func TestTranscriptOpensWithoutLiveUpdatesWhenSubscribeFails(t *testing.T) {
	defer verifyNoLeaks(t)
	h := newHarnessWithFeed(t, func(f *changefeed.MemoryFeed) changefeed.Feed {
		flaky := newFlakyFeed(f)
		flaky.refuse[convA.String()] = 1
		return flaky
	})
	defer h.close()
	ctx := context.Background()

	view, err := h.session.OpenConversation(ctx, convA)
	require.NoError(t, err)
	assert.False(t, view.Live)
	n, err := h.session.ActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, h.session.Resubscribe(ctx, convA))
	view, err = h.session.Transcript(ctx, convA)
	require.NoError(t, err)
	assert.True(t, view.Live)

	require.NoError(t, h.backend.receive(ctx, convA, t0.Add(time.Hour), "now live"))
	assert.Eventually(t, transcriptHas(ctx, h.session, convA, 1), time.Second, 10*time.Millisecond)
}
