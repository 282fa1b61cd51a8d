package remote

import (
	"sort"
	"sync"
)

// MessageHandler is the callback signature for received messages.
//
// Handlers run synchronously on the transport's goroutine (or inside Tick
// for poll-driven transports). They should not block for extended periods.
// The topic is repeated for convenience; it is always the subscribed topic.
type MessageHandler func(topic string, payload []byte)

// InsertResult reports the outcome of Registry.Insert.
type InsertResult int

// Registry insert outcomes.
const (
	Inserted InsertResult = iota
	Duplicate
)

// Registry maps exact topic strings to their single handler. It is the
// source of truth for what should be subscribed, independent of the
// current connection state.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]MessageHandler)}
}

// Insert adds handler for topic unless the topic is already present.
// A duplicate never replaces the existing handler.
func (r *Registry) Insert(topic string, handler MessageHandler) InsertResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[topic]; exists {
		return Duplicate
	}
	r.handlers[topic] = handler
	return Inserted
}

// Remove deletes topic and reports whether it was present.
func (r *Registry) Remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.handlers[topic]
	delete(r.handlers, topic)
	return exists
}

// Lookup returns the handler registered for exactly topic.
func (r *Registry) Lookup(topic string) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[topic]
	return h, ok
}

// Has reports whether topic is registered.
//
// Note: This checks only the exact topic string, not pattern matching.
func (r *Registry) Has(topic string) bool {
	_, ok := r.Lookup(topic)
	return ok
}

// Topics returns a sorted snapshot of all registered topics.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	r.mu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.handlers)
}
