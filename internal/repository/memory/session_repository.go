package memory

import (
	"sync"
	"time"

	"realtime-chat-be/pkg/chat/session"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps one live session per user. Idle sessions expire and are closed.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewSessionRepository(idleTTL time.Duration) *SessionRepository {
	c := cache.New(idleTTL, idleTTL/2)
	c.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*session.Session); ok {
			// Close waits on the session loop; keep it off the janitor goroutine.
			go s.Close()
		}
	})
	return &SessionRepository{
		cache: c,
	}
}

// GetOrCreate returns the user's session, creating it with create when absent.
// Every call refreshes the idle deadline.
func (r *SessionRepository) GetOrCreate(userId uuid.UUID, create func() *session.Session) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userId.String()
	if x, found := r.cache.Get(key); found {
		s := x.(*session.Session)
		r.cache.Set(key, s, cache.DefaultExpiration)
		return s
	}
	s := create()
	r.cache.Set(key, s, cache.DefaultExpiration)
	return s
}

func (r *SessionRepository) Get(userId uuid.UUID) (*session.Session, bool) {
	if x, found := r.cache.Get(userId.String()); found {
		return x.(*session.Session), true
	}
	return nil, false
}

// Delete removes the user's session and waits for it to close.
func (r *SessionRepository) Delete(userId uuid.UUID) {
	r.mu.Lock()
	x, found := r.cache.Get(userId.String())
	r.cache.Delete(userId.String())
	r.mu.Unlock()

	if found {
		x.(*session.Session).Close()
	}
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// Flush closes every session.
func (r *SessionRepository) Flush() {
	r.mu.Lock()
	items := r.cache.Items()
	r.cache.Flush()
	r.mu.Unlock()

	for _, item := range items {
		if s, ok := item.Object.(*session.Session); ok {
			s.Close()
		}
	}
}
