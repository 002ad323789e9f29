// Package session runs the real-time sync core of one signed-in user on a single event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/chaterr"
	"realtime-chat-be/pkg/chat/profile"
	"realtime-chat-be/pkg/chat/send"
	"realtime-chat-be/pkg/chat/subscription"
	"realtime-chat-be/pkg/chat/summary"
	"realtime-chat-be/pkg/chat/transcript"

	"github.com/google/uuid"
)

const taskBuffer = 256

// Backend is the query side of the store.
type Backend interface {
	ListConversations(ctx context.Context, userId uuid.UUID) ([]entity.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	ListParticipants(ctx context.Context, conversationId uuid.UUID) ([]entity.Participant, error)
	ListMessages(ctx context.Context, conversationId uuid.UUID) ([]entity.Message, error)
	InsertMessage(ctx context.Context, message *entity.Message) error
	MarkRead(ctx context.Context, conversationId, readerId uuid.UUID) error
}

type UpdateType string

const (
	UpdateTranscript       UpdateType = "transcript"
	UpdateConversations    UpdateType = "conversations"
	UpdateSubscriptionLost UpdateType = "subscription_lost"
)

// ViewUpdate is pushed after every change to a view of the session. SessionId tells
// apart the sessions a user holds on different instances.
type ViewUpdate struct {
	Type           UpdateType
	SessionId      uuid.UUID
	ConversationId uuid.UUID
	Messages       []entity.Message
	Conversations  []summary.Summary
	Live           bool
}

type Notifier interface {
	Deliver(userId uuid.UUID, update ViewUpdate)
}

type NotifierFunc func(userId uuid.UUID, update ViewUpdate)

func (f NotifierFunc) Deliver(userId uuid.UUID, update ViewUpdate) {
	f(userId, update)
}

// TranscriptView is the active conversation as seen by the caller.
type TranscriptView struct {
	ConversationId uuid.UUID
	Messages       []entity.Message
	// Live is false while the conversation has no working subscription.
	Live bool
}

type Deps struct {
	Backend  Backend
	Feed     changefeed.Feed
	Resolver *profile.Resolver
	Notifier Notifier
	Logger   logger.ILogger
}

type Option func(*Session)

func WithTolerance(d time.Duration) Option {
	return func(s *Session) { s.tolerance = d }
}

func WithPipelineOptions(opts ...send.Option) Option {
	return func(s *Session) { s.pipelineOpts = append(s.pipelineOpts, opts...) }
}

// Session owns one instance of every core component. All of their state is touched
// only from the loop goroutine; public methods hand work to it and wait.
type Session struct {
	id       uuid.UUID
	userId   uuid.UUID
	backend  Backend
	resolver *profile.Resolver
	notifier Notifier
	log      logger.ILogger

	tolerance    time.Duration
	pipelineOpts []send.Option

	// loop-owned
	subs      *subscription.Manager
	pipeline  *send.Pipeline
	summaries *summary.Store
	active    *transcript.Store
	openGen   uint64
	listOpen  bool
	selfLabel string

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(userId uuid.UUID, deps Deps, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.New(),
		userId:    userId,
		backend:   deps.Backend,
		resolver:  deps.Resolver,
		notifier:  deps.Notifier,
		log:       deps.Logger,
		tolerance: transcript.DefaultTolerance,
		summaries: summary.NewStore(),
		selfLabel: profile.Placeholder,
		tasks:     make(chan func(), taskBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(uuid.UUID, ViewUpdate) {})
	}
	s.pipeline = send.NewPipeline(s.backend, s.pipelineOpts...)
	s.subs = subscription.NewManager(deps.Feed, s.post, s.handleInsert, s.handleFailure, s.log)

	go s.run()
	return s
}

func (s *Session) UserId() uuid.UUID {
	return s.userId
}

// Id identifies this session in every ViewUpdate it pushes.
func (s *Session) Id() uuid.UUID {
	return s.id
}

func (s *Session) deliver(update ViewUpdate) {
	update.SessionId = s.id
	s.notifier.Deliver(s.userId, update)
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-s.quit:
			s.subs.Close()
			return
		}
	}
}

// post schedules fn on the loop. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.tasks <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !s.post(func() { res <- fn() }) {
		return chaterr.ErrSessionClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return chaterr.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// background runs fn off the loop. Only called from the loop.
func (s *Session) background(fn func(ctx context.Context)) {
	select {
	case <-s.quit:
		return
	default:
	}
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn(s.ctx)
	}()
}

// Close tears down every subscription and waits for the loop and its workers to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.quit)
		<-s.done
		s.workers.Wait()
	})
}

// OpenList loads the conversation list and subscribes to every listed conversation
// plus the user's membership rows. The list is fetched again once the subscriptions
// are open, so activity committed between the first fetch and the subscriptions is
// not lost. Subscription failures leave the list usable.
func (s *Session) OpenList(ctx context.Context) ([]summary.Summary, error) {
	conversations, err := s.backend.ListConversations(ctx, s.userId)
	if err != nil {
		return nil, chaterr.Persistence("list conversations", err)
	}
	s.labelPreviews(ctx, conversations)

	var list []summary.Summary
	err = s.do(ctx, func() error {
		s.listOpen = true
		s.summaries.Seed(conversations)
		if err := s.subs.Acquire(s.ctx, subscription.MembershipKey(s.userId), subscription.HolderList); err != nil {
			s.log.Warn("SESSION", "Membership subscription unavailable", map[string]interface{}{
				"user_id": s.userId.String(),
				"error":   err.Error(),
			})
		}
		for _, c := range conversations {
			s.acquireForList(c.Id)
		}
		list = s.summaries.List()
		return nil
	})
	if err != nil {
		return nil, err
	}

	refreshed, err := s.backend.ListConversations(ctx, s.userId)
	if err != nil {
		s.log.Warn("SESSION", "Failed to refresh conversation list", map[string]interface{}{
			"user_id": s.userId.String(),
			"error":   err.Error(),
		})
		return list, nil
	}
	s.labelPreviews(ctx, refreshed)

	err = s.do(ctx, func() error {
		if !s.listOpen {
			return nil
		}
		for _, c := range refreshed {
			tracked := s.summaries.Tracked(c.Id)
			s.summaries.Track(c)
			if !tracked {
				s.acquireForList(c.Id)
			}
		}
		list = s.summaries.List()
		return nil
	})
	return list, err
}

func (s *Session) acquireForList(conversationId uuid.UUID) {
	if err := s.subs.Acquire(s.ctx, subscription.ConversationKey(conversationId), subscription.HolderList); err != nil {
		s.log.Warn("SESSION", "Conversation subscription unavailable", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
	}
}

// CloseList releases every subscription held for the list view.
func (s *Session) CloseList(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.listOpen = false
		for _, key := range s.subs.KeysHeldBy(subscription.HolderList) {
			s.subs.Release(key, subscription.HolderList)
		}
		return nil
	})
}

// OpenConversation makes a conversation the active transcript. The subscription is
// opened before history is fetched so no insert falls between the two.
func (s *Session) OpenConversation(ctx context.Context, conversationId uuid.UUID) (TranscriptView, error) {
	participants, err := s.backend.ListParticipants(ctx, conversationId)
	if err != nil {
		return TranscriptView{}, chaterr.Persistence("list participants", err)
	}
	ids := make([]uuid.UUID, 0, len(participants))
	member := false
	for _, p := range participants {
		ids = append(ids, p.UserId)
		member = member || p.UserId == s.userId
	}
	if !member {
		return TranscriptView{}, fmt.Errorf("%w: conversation %s", chaterr.ErrNotFound, conversationId)
	}
	labels := s.resolver.ResolveMany(ctx, ids)

	var gen uint64
	var reopened *TranscriptView
	err = s.do(ctx, func() error {
		s.selfLabel = labels[s.userId]
		if s.active != nil && s.active.ConversationId() == conversationId {
			view := s.transcriptView()
			reopened = &view
			return nil
		}
		s.closeActive()
		s.openGen++
		gen = s.openGen
		s.active = transcript.NewStore(conversationId, s.tolerance)
		if err := s.subs.Acquire(s.ctx, subscription.ConversationKey(conversationId), subscription.HolderTranscript); err != nil {
			s.log.Warn("SESSION", "Transcript opened without live updates", map[string]interface{}{
				"conversation_id": conversationId.String(),
				"error":           err.Error(),
			})
		}
		if s.summaries.MarkRead(conversationId) {
			s.notifyConversations()
		}
		return nil
	})
	if err != nil {
		return TranscriptView{}, err
	}
	if reopened != nil {
		return *reopened, nil
	}

	history, fetchErr := s.backend.ListMessages(ctx, conversationId)
	if fetchErr == nil {
		s.labelMessages(ctx, history)
	}

	var view TranscriptView
	err = s.do(context.WithoutCancel(ctx), func() error {
		if s.openGen != gen || s.active == nil {
			return fmt.Errorf("%w: conversation %s was closed", chaterr.ErrNotActive, conversationId)
		}
		if fetchErr != nil {
			return chaterr.Persistence("list messages", fetchErr)
		}
		s.active.Load(history)
		view = s.transcriptView()
		s.notifyTranscript()
		return nil
	})
	return view, err
}

// CloseConversation deactivates the transcript. Closing a conversation that is not
// active is a no-op.
func (s *Session) CloseConversation(ctx context.Context, conversationId uuid.UUID) error {
	return s.do(ctx, func() error {
		if s.active == nil || s.active.ConversationId() != conversationId {
			return nil
		}
		s.closeActive()
		return nil
	})
}

func (s *Session) closeActive() {
	if s.active == nil {
		return
	}
	s.subs.Release(subscription.ConversationKey(s.active.ConversationId()), subscription.HolderTranscript)
	s.active = nil
	s.openGen++
}

// Send appends text optimistically to the active transcript and persists it. On
// failure the entry is flagged failed and the error returned with it.
func (s *Session) Send(ctx context.Context, conversationId uuid.UUID, text string) (entity.Message, error) {
	var draft entity.Message
	var gen uint64
	err := s.do(ctx, func() error {
		if err := s.requireActive(conversationId); err != nil {
			return err
		}
		d, err := s.pipeline.Draft(conversationId, s.userId, s.selfLabel, text)
		if err != nil {
			return err
		}
		s.pipeline.Apply(s.active, s.summaries, d)
		draft, gen = d, s.openGen
		s.notifyTranscript()
		if s.summaries.Tracked(conversationId) {
			s.notifyConversations()
		}
		return nil
	})
	if err != nil {
		return entity.Message{}, err
	}
	return s.persist(ctx, gen, draft)
}

// Retry re-issues persistence of a failed message.
func (s *Session) Retry(ctx context.Context, conversationId, messageId uuid.UUID) (entity.Message, error) {
	var draft entity.Message
	var gen uint64
	err := s.do(ctx, func() error {
		if err := s.requireActive(conversationId); err != nil {
			return err
		}
		d, err := s.pipeline.Reopen(s.active, messageId)
		if err != nil {
			return err
		}
		draft, gen = d, s.openGen
		s.notifyTranscript()
		return nil
	})
	if err != nil {
		return entity.Message{}, err
	}
	return s.persist(ctx, gen, draft)
}

// persist runs the insert on the caller's goroutine. The insert is not cancelled with
// the caller, and its completion is dropped when the transcript moved on.
func (s *Session) persist(ctx context.Context, gen uint64, draft entity.Message) (entity.Message, error) {
	ctx = context.WithoutCancel(ctx)
	stored, persistErr := s.pipeline.Persist(ctx, draft)

	result := stored
	err := s.do(ctx, func() error {
		if s.openGen != gen || s.active == nil {
			return nil
		}
		s.pipeline.Settle(s.active, draft.Id, persistErr)
		if persistErr != nil {
			if failed, ok := s.active.Get(draft.Id); ok {
				result = failed
			}
		} else if s.subs.State(subscription.ConversationKey(draft.ConversationId)) != subscription.Active {
			// Nothing will echo the row back.
			s.active.Reconcile(stored)
		}
		s.notifyTranscript()
		return nil
	})
	if persistErr != nil {
		if result.Id == uuid.Nil {
			result = draft
			result.Status = entity.MessageStatusFailed
			result.FailureReason = persistErr.Error()
		}
		return result, persistErr
	}
	if err != nil && !errors.Is(err, chaterr.ErrSessionClosed) {
		return stored, err
	}
	return stored, nil
}

// MarkRead flags the conversation's messages from others as read.
func (s *Session) MarkRead(ctx context.Context, conversationId uuid.UUID) error {
	if err := s.backend.MarkRead(ctx, conversationId, s.userId); err != nil {
		return chaterr.Persistence("mark read", err)
	}
	return s.do(ctx, func() error {
		if s.active != nil && s.active.ConversationId() == conversationId && s.active.MarkRead(s.userId) > 0 {
			s.notifyTranscript()
		}
		if s.summaries.MarkRead(conversationId) {
			s.notifyConversations()
		}
		return nil
	})
}

// Resubscribe reopens a conversation's subscription after a failure, along with the
// membership subscription when the list is open.
func (s *Session) Resubscribe(ctx context.Context, conversationId uuid.UUID) error {
	return s.do(ctx, func() error {
		if s.listOpen {
			membership := subscription.MembershipKey(s.userId)
			if s.subs.State(membership) != subscription.Active {
				if err := s.subs.Resubscribe(s.ctx, membership); err != nil {
					return err
				}
			}
		}
		return s.subs.Resubscribe(s.ctx, subscription.ConversationKey(conversationId))
	})
}

// Transcript returns the active conversation.
func (s *Session) Transcript(ctx context.Context, conversationId uuid.UUID) (TranscriptView, error) {
	var view TranscriptView
	err := s.do(ctx, func() error {
		if err := s.requireActive(conversationId); err != nil {
			return err
		}
		view = s.transcriptView()
		return nil
	})
	return view, err
}

func (s *Session) Conversations(ctx context.Context) ([]summary.Summary, error) {
	var list []summary.Summary
	err := s.do(ctx, func() error {
		list = s.summaries.List()
		return nil
	})
	return list, err
}

// ActiveSubscriptions is the number of open change-feed subscriptions.
func (s *Session) ActiveSubscriptions(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func() error {
		n = s.subs.ActiveCount()
		return nil
	})
	return n, err
}

func (s *Session) requireActive(conversationId uuid.UUID) error {
	if s.active == nil || s.active.ConversationId() != conversationId {
		return fmt.Errorf("%w: %s", chaterr.ErrNotActive, conversationId)
	}
	return nil
}

func (s *Session) transcriptView() TranscriptView {
	if s.active == nil {
		return TranscriptView{}
	}
	id := s.active.ConversationId()
	return TranscriptView{
		ConversationId: id,
		Messages:       s.active.Messages(),
		Live:           s.subs.State(subscription.ConversationKey(id)) == subscription.Active,
	}
}

func (s *Session) notifyTranscript() {
	if s.active == nil {
		return
	}
	view := s.transcriptView()
	s.deliver(ViewUpdate{
		Type:           UpdateTranscript,
		ConversationId: view.ConversationId,
		Messages:       view.Messages,
		Live:           view.Live,
	})
}

func (s *Session) notifyConversations() {
	if !s.listOpen {
		return
	}
	s.deliver(ViewUpdate{
		Type:          UpdateConversations,
		Conversations: s.summaries.List(),
	})
}

func (s *Session) labelPreviews(ctx context.Context, conversations []entity.Conversation) {
	var ids []uuid.UUID
	for _, c := range conversations {
		if c.LastMessage != nil {
			ids = append(ids, c.LastMessage.SenderId)
		}
	}
	if len(ids) == 0 {
		return
	}
	labels := s.resolver.ResolveMany(ctx, ids)
	for i := range conversations {
		if p := conversations[i].LastMessage; p != nil {
			p.SenderLabel = labels[p.SenderId]
		}
	}
}

func (s *Session) labelMessages(ctx context.Context, messages []entity.Message) {
	ids := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		ids[i] = m.SenderId
	}
	labels := s.resolver.ResolveMany(ctx, ids)
	for i := range messages {
		messages[i].SenderLabel = labels[messages[i].SenderId]
	}
}
