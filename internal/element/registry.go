package element

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
)

type entry[K ir.ID, T any] struct {
	info    ir.Information[K]
	payload T
}

// Registry maps generated ids to payloads and their metadata.
//
// Every Add mints a new id, so registering the same payload twice yields
// two independent entries. All methods are safe for concurrent use;
// readers never observe a half-applied Update.
type Registry[K ir.ID, T any] struct {
	mu      sync.RWMutex
	ids     idgen.Generator
	entries map[K]*entry[K, T]
	order   []K
}

// NewRegistry creates an empty registry that mints ids from gen.
func NewRegistry[K ir.ID, T any](gen idgen.Generator) *Registry[K, T] {
	return &Registry[K, T]{
		ids:     gen,
		entries: make(map[K]*entry[K, T]),
	}
}

// Add stores payload under a freshly minted id.
func (r *Registry[K, T]) Add(payload T, name, description string) (ir.Information[K], error) {
	if isNil(payload) {
		return ir.Information[K]{}, fmt.Errorf("add %q: payload: %w", name, ErrArgumentMissing)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	info := ir.Information[K]{ID: K(r.ids.Next()), Name: name, Description: description}
	r.entries[info.ID] = &entry[K, T]{info: info, payload: payload}
	r.order = append(r.order, info.ID)
	return info, nil
}

// Information returns the metadata registered under id.
func (r *Registry[K, T]) Information(id K) (ir.Information[K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return ir.Information[K]{}, false
	}
	return e.info, true
}

// Payload returns the payload registered under id.
func (r *Registry[K, T]) Payload(id K) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.payload, true
}

// Update replaces the payload stored under id, keeping its metadata.
func (r *Registry[K, T]) Update(id K, payload T) error {
	if ir.IsZero(id) {
		return fmt.Errorf("update: id: %w", ErrArgumentMissing)
	}
	if isNil(payload) {
		return fmt.Errorf("update %s: payload: %w", id, ErrArgumentMissing)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrUnknownElement)
	}
	r.entries[id] = &entry[K, T]{info: e.info, payload: payload}
	return nil
}

// Remove deletes the entry stored under id. Null and unknown ids are ignored.
func (r *Registry[K, T]) Remove(id K) {
	if ir.IsZero(id) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, k := range r.order {
		if k == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether id is registered. It is false for the null id.
func (r *Registry[K, T]) Contains(id K) bool {
	if ir.IsZero(id) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// List returns the metadata of every entry in registration order.
func (r *Registry[K, T]) List() []ir.Information[K] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ir.Information[K], 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].info)
	}
	return out
}

// ByName returns the earliest registered entry with the given name.
func (r *Registry[K, T]) ByName(name string) (ir.Information[K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if e := r.entries[id]; e.info.Name == name {
			return e.info, true
		}
	}
	return ir.Information[K]{}, false
}

// Len returns the number of registered entries.
func (r *Registry[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// isNil reports whether v is nil, including typed nils behind an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
