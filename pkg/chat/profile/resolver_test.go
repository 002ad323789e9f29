package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*entity.Profile
	calls    [][]uuid.UUID
	err      error
}

func (f *fakeSource) FindProfiles(_ context.Context, ids []uuid.UUID) ([]*entity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]uuid.UUID(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.Profile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name    string
		profile *entity.Profile
		want    string
	}{
		{"display name", &entity.Profile{DisplayName: "Ada Lovelace", Email: "ada@example.com"}, "Ada Lovelace"},
		{"blank display name", &entity.Profile{DisplayName: "   ", Email: "grace@example.com"}, "grace"},
		{"dotted local part", &entity.Profile{Email: "john.doe@example.com"}, "john"},
		{"no email", &entity.Profile{}, Placeholder},
		{"email starting with dot", &entity.Profile{Email: ".x@example.com"}, Placeholder},
		{"nil profile", nil, Placeholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.profile))
		})
	}
}

func TestResolveManyBatchesAndDedupes(t *testing.T) {
	a, b, missing := uuid.New(), uuid.New(), uuid.New()
	src := &fakeSource{profiles: map[uuid.UUID]*entity.Profile{
		a: {Id: a, DisplayName: "Alice"},
		b: {Id: b, Email: "bob.smith@example.com"},
	}}
	r := NewResolver(src, time.Minute, logger.NewNopLogger())

	got := r.ResolveMany(context.Background(), []uuid.UUID{a, b, a, missing, b})

	require.Len(t, src.calls, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b, missing}, src.calls[0])
	assert.Equal(t, map[uuid.UUID]string{a: "Alice", b: "bob", missing: Placeholder}, got)

	// Cached ids are not fetched again; the unresolved one is retried.
	r.ResolveMany(context.Background(), []uuid.UUID{a, b, missing})
	require.Len(t, src.calls, 2)
	assert.Equal(t, []uuid.UUID{missing}, src.calls[1])
}

type warnRecorder struct {
	logger.ILogger
	mu    sync.Mutex
	warns []map[string]interface{}
}

func (w *warnRecorder) Warn(_, _ string, details map[string]interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, details)
}

func TestResolveFallsBackOnError(t *testing.T) {
	id := uuid.New()
	src := &fakeSource{err: errors.New("connection refused")}
	log := &warnRecorder{ILogger: logger.NewNopLogger()}
	r := NewResolver(src, time.Minute, log)

	assert.Equal(t, Placeholder, r.Resolve(context.Background(), id))
	_, cached := r.Cached(id)
	assert.False(t, cached, "fallback labels are not cached")

	require.Len(t, log.warns, 1)
	assert.Equal(t, "connection refused", log.warns[0]["error"])
	assert.Equal(t, 1, log.warns[0]["count"])
}

func TestRemember(t *testing.T) {
	id := uuid.New()
	src := &fakeSource{}
	r := NewResolver(src, time.Minute, logger.NewNopLogger())

	r.Remember(&entity.Profile{Id: id, DisplayName: "Zed"})

	assert.Equal(t, "Zed", r.Resolve(context.Background(), id))
	assert.Empty(t, src.calls)
}
