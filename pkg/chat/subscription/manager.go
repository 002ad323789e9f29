// Package subscription owns the change-feed subscriptions of one session.
package subscription

import (
	"context"
	"fmt"

	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/chaterr"

	"github.com/google/uuid"
)

type State int

const (
	Inactive State = iota
	Subscribing
	Active
	Closing
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Holder is a view that needs a key's events.
type Holder string

const (
	HolderTranscript Holder = "transcript"
	HolderList       Holder = "list"
)

// Key identifies one subscription: a table and its filter.
type Key struct {
	Table  string
	Filter changefeed.Filter
}

func (k Key) String() string {
	return k.Table + "?" + k.Filter.String()
}

// ConversationKey is the message stream of one conversation.
func ConversationKey(conversationId uuid.UUID) Key {
	return Key{
		Table:  changefeed.TableMessages,
		Filter: changefeed.Eq(changefeed.PartitionColumn(changefeed.TableMessages), conversationId.String()),
	}
}

// MembershipKey is the stream of participant rows added for one user.
func MembershipKey(userId uuid.UUID) Key {
	return Key{
		Table:  changefeed.TableParticipants,
		Filter: changefeed.Eq(changefeed.PartitionColumn(changefeed.TableParticipants), userId.String()),
	}
}

// Poster schedules fn on the owning loop. It returns false once the loop is gone.
type Poster func(fn func()) bool

type entry struct {
	key     Key
	holders map[Holder]struct{}
	state   State
	gen     uint64
	handle  changefeed.Handle
	lastErr error
}

// Manager is a reference-counted pool of subscriptions keyed by Key. Each key has at
// most one open subscription regardless of how many holders need it. All methods must
// be called from the owning loop; feed callbacks are marshalled back through Poster.
type Manager struct {
	feed      changefeed.Feed
	post      Poster
	onInsert  func(Key, changefeed.InsertEvent)
	onFailure func(Key, error)
	log       logger.ILogger

	entries map[Key]*entry
	nextGen uint64
	dropped int
}

func NewManager(
	feed changefeed.Feed,
	post Poster,
	onInsert func(Key, changefeed.InsertEvent),
	onFailure func(Key, error),
	log logger.ILogger,
) *Manager {
	return &Manager{
		feed:      feed,
		post:      post,
		onInsert:  onInsert,
		onFailure: onFailure,
		log:       log,
		entries:   make(map[Key]*entry),
	}
}

// Acquire registers holder on key and opens the subscription if it is not active.
// Acquiring twice with the same holder is a no-op. When the feed refuses the
// subscription the holder stays registered so Resubscribe can retry.
func (m *Manager) Acquire(ctx context.Context, key Key, holder Holder) error {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{key: key, holders: make(map[Holder]struct{})}
		m.entries[key] = e
	}
	e.holders[holder] = struct{}{}

	if e.state == Active {
		return nil
	}
	return m.open(ctx, e)
}

func (m *Manager) open(ctx context.Context, e *entry) error {
	m.nextGen++
	gen := m.nextGen
	key := e.key

	e.state = Subscribing
	e.gen = gen
	handle, err := m.feed.Subscribe(ctx, key.Table, key.Filter,
		func(ev changefeed.InsertEvent) {
			m.post(func() { m.deliver(key, gen, ev) })
		},
		func(err error) {
			m.post(func() { m.fail(key, gen, err) })
		},
	)
	if err != nil {
		e.state = Inactive
		e.lastErr = chaterr.Subscription(key.String(), err)
		m.log.Warn("SUBSCRIPTION", "Subscribe failed", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
		return e.lastErr
	}

	e.handle = handle
	e.state = Active
	e.lastErr = nil
	m.log.Debug("SUBSCRIPTION", "Subscribed", map[string]interface{}{
		"key":     key.String(),
		"holders": len(e.holders),
	})
	return nil
}

// Release drops holder from key. The last holder closes the subscription before returning.
func (m *Manager) Release(key Key, holder Holder) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(e.holders, holder)
	if len(e.holders) > 0 {
		return
	}
	m.teardown(e)
	delete(m.entries, key)
}

func (m *Manager) teardown(e *entry) {
	if e.handle == nil {
		e.state = Inactive
		return
	}
	e.state = Closing
	if err := e.handle.Unsubscribe(); err != nil {
		m.log.Warn("SUBSCRIPTION", "Unsubscribe failed", map[string]interface{}{
			"key":   e.key.String(),
			"error": err.Error(),
		})
	}
	e.handle = nil
	e.gen = 0
	e.state = Inactive
	m.log.Debug("SUBSCRIPTION", "Unsubscribed", map[string]interface{}{"key": e.key.String()})
}

// Resubscribe reopens a key whose subscription failed. It is a no-op for active keys.
func (m *Manager) Resubscribe(ctx context.Context, key Key) error {
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("%w: no holders for %s", chaterr.ErrNotFound, key)
	}
	if e.state == Active {
		return nil
	}
	return m.open(ctx, e)
}

func (m *Manager) deliver(key Key, gen uint64, ev changefeed.InsertEvent) {
	e, ok := m.entries[key]
	if !ok || e.gen != gen || e.state != Active {
		m.dropped++
		return
	}
	m.onInsert(key, ev)
}

func (m *Manager) fail(key Key, gen uint64, err error) {
	e, ok := m.entries[key]
	if !ok || e.gen != gen || e.state != Active {
		return
	}
	m.teardown(e)
	e.lastErr = chaterr.Subscription(key.String(), err)
	m.log.Warn("SUBSCRIPTION", "Subscription lost", map[string]interface{}{
		"key":   key.String(),
		"error": err.Error(),
	})
	if m.onFailure != nil {
		m.onFailure(key, e.lastErr)
	}
}

func (m *Manager) State(key Key) State {
	if e, ok := m.entries[key]; ok {
		return e.state
	}
	return Inactive
}

// Err returns the last failure of key, cleared by a successful (re)subscribe.
func (m *Manager) Err(key Key) error {
	if e, ok := m.entries[key]; ok {
		return e.lastErr
	}
	return nil
}

func (m *Manager) HasHolder(key Key, holder Holder) bool {
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	_, held := e.holders[holder]
	return held
}

// ActiveCount is the number of open subscriptions.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, e := range m.entries {
		if e.state == Active {
			n++
		}
	}
	return n
}

// Dropped counts stale deliveries discarded after their subscription closed.
func (m *Manager) Dropped() int {
	return m.dropped
}

// KeysHeldBy lists the keys holder currently holds.
func (m *Manager) KeysHeldBy(holder Holder) []Key {
	var keys []Key
	for k, e := range m.entries {
		if _, ok := e.holders[holder]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Close releases every subscription.
func (m *Manager) Close() {
	for k, e := range m.entries {
		m.teardown(e)
		delete(m.entries, k)
	}
}
