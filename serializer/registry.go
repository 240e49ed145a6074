package serializer

import (
	"sync"

	"github.com/warrenq/warren/errors"
)

// Registry maps content types to a Serializer implementation, so a
// consumer can decode deliveries published with different encodings.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]Serializer
	fallback Serializer
}

// NewRegistry returns a Registry pre-populated with JSON as both the
// "application/json" entry and the fallback used when a delivery
// carries no content type.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Serializer), fallback: JSON{}}
	r.Register(JSON{})
	return r
}

// Register adds s under its own ContentType, overriding any previous
// registration for that content type.
func (r *Registry) Register(s Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[s.ContentType()] = s
}

// SetFallback changes the serializer used when a delivery's content
// type is empty or has no registered match.
func (r *Registry) SetFallback(s Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = s
}

// Lookup returns the serializer registered for contentType, falling
// back to the registry's default when contentType is empty or
// unregistered.
func (r *Registry) Lookup(contentType string) Serializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if contentType == "" {
		return r.fallback
	}
	if s, ok := r.byType[contentType]; ok {
		return s
	}
	return r.fallback
}

// Decode looks up the serializer for contentType and decodes body into v.
func (r *Registry) Decode(contentType string, body []byte, v interface{}) error {
	s := r.Lookup(contentType)
	if s == nil {
		return errors.SerializationError(errors.New("no serializer available"))
	}
	return s.Decode(body, v)
}
