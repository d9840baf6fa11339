package wearable

import (
	"sort"
	"strings"
	"sync"
)

// Registry is the process-wide slug -> integration table. It is populated by
// explicit registration at startup and, outside of tests, never mutated
// afterwards. Constructed explicitly so tests can hold isolated instances.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]DeviceIntegration
}

func NewRegistry() *Registry {
	return &Registry{integrations: map[string]DeviceIntegration{}}
}

// Register adds an integration under its slug. Last registration for a slug
// wins.
func (r *Registry) Register(integration DeviceIntegration) {
	if integration == nil {
		return
	}
	slug := normalizeSlug(integration.Slug())
	if slug == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[slug] = integration
}

// Unregister removes a slug; removing an absent slug is a no-op.
func (r *Registry) Unregister(slug string) {
	slug = normalizeSlug(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.integrations, slug)
}

func (r *Registry) Get(slug string) (DeviceIntegration, bool) {
	slug = normalizeSlug(slug)
	r.mu.RLock()
	defer r.mu.RUnlock()
	integration, ok := r.integrations[slug]
	return integration, ok
}

// All returns every registered integration, ordered by slug.
func (r *Registry) All() []DeviceIntegration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.integrations, func(DeviceIntegration) bool { return true })
}

// Configured returns the integrations whose operator credentials are present.
func (r *Registry) Configured() []DeviceIntegration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.integrations, func(i DeviceIntegration) bool { return i.IsConfigured() })
}

// Reset empties the table. Test hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations = map[string]DeviceIntegration{}
}

func sortedValues(table map[string]DeviceIntegration, keep func(DeviceIntegration) bool) []DeviceIntegration {
	slugs := make([]string, 0, len(table))
	for slug := range table {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	out := make([]DeviceIntegration, 0, len(slugs))
	for _, slug := range slugs {
		if keep(table[slug]) {
			out = append(out, table[slug])
		}
	}
	return out
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
