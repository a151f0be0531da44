// Package attribution aggregates the credits a renderer must show for the
// sources currently in a style.
package attribution

import (
	"slices"
	"sync"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
)

// Registry is read by the renderer or UI and written only when a source
// becomes Ready, is replaced or is removed.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string][]domain.AttributionInfo
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string][]domain.AttributionInfo),
	}
}

// Set replaces the entries for a source. Inline option entries are expected
// to come first, as SourceDescriptor.Attribution already orders them.
func (r *Registry) Set(sourceID string, infos []domain.AttributionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[sourceID]; !ok {
		r.order = append(r.order, sourceID)
	}
	r.entries[sourceID] = slices.Clone(infos)
}

func (r *Registry) Remove(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[sourceID]; !ok {
		return
	}
	delete(r.entries, sourceID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == sourceID })
}

func (r *Registry) Source(sourceID string) ([]domain.AttributionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos, ok := r.entries[sourceID]
	return slices.Clone(infos), ok
}

// All concatenates every source's entries in registration order without
// removing duplicates.
func (r *Registry) All() []domain.AttributionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AttributionInfo
	for _, id := range r.order {
		out = append(out, r.entries[id]...)
	}
	return out
}

// Deduplicate drops repeated title/url pairs, keeping first occurrences.
// Display code calls it; the registry itself never deduplicates.
func Deduplicate(infos []domain.AttributionInfo) []domain.AttributionInfo {
	seen := make(map[domain.AttributionInfo]struct{}, len(infos))
	out := make([]domain.AttributionInfo, 0, len(infos))
	for _, info := range infos {
		if _, ok := seen[info]; ok {
			continue
		}
		seen[info] = struct{}{}
		out = append(out, info)
	}
	return out
}
