package consumer

import (
	"fmt"
	"sync"
)

// Registry accumulates Descriptors through Add calls and is frozen
// exactly once, right before Worker.Run starts subscribing, mirroring
// the builder-then-consume idiom cli.SetupCommandParams uses for its
// own []Param list.
type Registry struct {
	mu     sync.Mutex
	items  []Descriptor
	frozen bool
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a new descriptor for queue, applying every option in
// order. Panics if called after Freeze: registration is a startup-time
// concern, never a runtime one.
func (r *Registry) Add(name, queue string, opts ...DescriptorOption) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("consumer: Add(%q) called after Freeze", name))
	}
	d := Descriptor{Name: name, Queue: queue}
	for _, opt := range opts {
		opt(&d)
	}
	r.items = append(r.items, d)
	return r
}

// Freeze returns the accumulated descriptor list and locks the
// registry against further registration.
func (r *Registry) Freeze() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	out := make([]Descriptor, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports how many descriptors have been registered so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
