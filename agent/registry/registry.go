// Package registry keeps the ordered list of submitted goal names.
package registry

import "sync"

// Registry is an append-only, concurrency-safe sequence of goal names.
// Duplicates are kept and nothing is ever removed.
type Registry struct {
	mu    sync.Mutex
	names []string
}

func New() *Registry {
	return &Registry{names: make([]string, 0, 16)}
}

// Register appends name. It is visible to Snapshot once Register returns.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

// Snapshot returns a copy of the names in submission order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
