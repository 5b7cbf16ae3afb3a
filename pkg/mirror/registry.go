package mirror

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a name-keyed set of backends. The zero value is ready to
// use and safe for concurrent access.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its own name. Registering the same
// name twice is a programming error and fails loudly.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backends == nil {
		r.backends = make(map[string]Backend)
	}
	name := b.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("mirror: backend %q already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Get looks a backend up by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns all registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handling returns the registered backends that accept the media type,
// sorted by name.
func (r *Registry) Handling(mediaType string) []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []Backend
	for _, b := range r.backends {
		if b.CanHandle(mediaType) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name() < matched[j].Name() })
	return matched
}
