// Package events provides the process-wide signal bus.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	// AuthExpired is raised when the sales API rejects or lacks a token.
	// It carries no payload; the UI layer reacts by prompting re-login.
	AuthExpired EventType = "AUTH_EXPIRED"
)

// Event represents a system event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
}

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]Handler
	counts   map[EventType]int
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int]Handler),
		counts:   make(map[EventType]int),
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers h for eventType and returns a function that removes it.
func (b *Bus) Subscribe(eventType EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	b.handlers[eventType][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// Emit publishes an event to every subscriber of its type.
func (b *Bus) Emit(eventType EventType, module string) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
	}

	b.mu.Lock()
	b.counts[eventType]++
	handlers := make([]Handler, 0, len(b.handlers[eventType]))
	for _, h := range b.handlers[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	b.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscribers", len(handlers)).
		Msg("Event emitted")

	for _, h := range handlers {
		h(event)
	}
}

// Count returns how many times eventType has been emitted.
func (b *Bus) Count(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.counts[eventType]
}
