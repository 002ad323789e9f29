// Package profile maps sender identifiers to display labels.
package profile

import (
	"context"
	"strings"
	"time"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Placeholder is the label of a sender whose profile cannot be resolved.
const Placeholder = "Unknown"

// Source fetches profiles by id in a single request.
type Source interface {
	FindProfiles(ctx context.Context, ids []uuid.UUID) ([]*entity.Profile, error)
}

// Label derives the display label of a profile: the display name when set,
// else the email local part up to its first '.', else Placeholder.
func Label(p *entity.Profile) string {
	if p == nil {
		return Placeholder
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(p.Email), "@")
	local, _, _ = strings.Cut(local, ".")
	if local == "" {
		return Placeholder
	}
	return local
}

// Resolver caches labels across sessions. It is safe for concurrent use.
type Resolver struct {
	source Source
	labels *cache.Cache
	logger logger.ILogger
}

func NewResolver(source Source, ttl time.Duration, log logger.ILogger) *Resolver {
	return &Resolver{
		source: source,
		labels: cache.New(ttl, 2*ttl),
		logger: log,
	}
}

// Resolve returns the label of a single sender.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) string {
	return r.ResolveMany(ctx, []uuid.UUID{id})[id]
}

// ResolveMany returns a label for every id. Duplicates are collapsed and uncached
// ids are fetched in one request. Ids that cannot be resolved, including after a
// fetch error, map to Placeholder and are not cached.
func (r *Resolver) ResolveMany(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	res := make(map[uuid.UUID]string, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if _, seen := res[id]; seen {
			continue
		}
		if label, ok := r.labels.Get(id.String()); ok {
			res[id] = label.(string)
			continue
		}
		res[id] = Placeholder
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return res
	}

	profiles, err := r.source.FindProfiles(ctx, missing)
	if err != nil {
		r.logger.Warn("PROFILE", "Failed to fetch profiles, using placeholder labels", map[string]interface{}{
			"count": len(missing),
			"error": err.Error(),
		})
		return res
	}
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if _, wanted := res[p.Id]; !wanted {
			continue
		}
		label := Label(p)
		res[p.Id] = label
		r.labels.SetDefault(p.Id.String(), label)
	}
	return res
}

// Cached returns a label without fetching.
func (r *Resolver) Cached(id uuid.UUID) (string, bool) {
	label, ok := r.labels.Get(id.String())
	if !ok {
		return "", false
	}
	return label.(string), true
}

// Remember seeds the cache from a profile fetched elsewhere.
func (r *Resolver) Remember(p *entity.Profile) {
	if p == nil {
		return
	}
	r.labels.SetDefault(p.Id.String(), Label(p))
}
