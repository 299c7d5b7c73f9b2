// Package listeners keeps track of live realtime subscriptions so they can be
// torn down exactly once.
package listeners

import (
	"sync"
)

// Factory opens a subscription and returns its disposer.
type Factory func() (func(), error)

type entry struct {
	once    sync.Once
	dispose func()
}

func (e *entry) run() {
	e.once.Do(func() {
		if e.dispose != nil {
			e.dispose()
		}
	})
}

// Registry maps a logical subscription key to the disposer of the live
// subscription armed under it. Every disposer handed to the registry is
// invoked at most once.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Arm disposes whatever is registered under key, then opens a new
// subscription with factory and registers its disposer.
// If factory fails, the key is left empty and the error is returned.
func (r *Registry) Arm(key string, factory Factory) error {
	r.Dispose(key)

	dispose, err := factory()
	if err != nil {
		return err
	}

	e := &entry{dispose: dispose}
	r.mu.Lock()
	prev := r.entries[key]
	r.entries[key] = e
	r.mu.Unlock()

	// Another Arm for the same key won the race while factory was running.
	if prev != nil {
		prev.run()
	}
	return nil
}

// Dispose invokes and removes the disposer registered under key.
// It reports whether an entry was found.
func (r *Registry) Dispose(key string) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if ok {
		e.run()
	}
	return ok
}

// DisposeAll invokes and removes every registered disposer and returns how
// many entries were removed. Calling it again on an empty registry is a no-op.
func (r *Registry) DisposeAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.run()
	}
	return len(entries)
}

// Has reports whether a subscription is armed under key.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of armed subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
