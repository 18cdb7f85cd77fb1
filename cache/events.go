package cache

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// EventSource tells subscribers why the cache changed
type EventSource string

const (
	SourceAPI    EventSource = "api"
	SourceAdd    EventSource = "add"
	SourceUpdate EventSource = "update"
	SourceDelete EventSource = "delete"
	SourceClear  EventSource = "clear"
)

// Event is published after every change of a cached collection
type Event struct {
	Source EventSource `json:"source"`
	// Entity is the collection name, Namespace its store namespace
	Entity    string `json:"entity"`
	Namespace string `json:"namespace"`
	// AffectedID is set for add, update and delete
	AffectedID string `json:"affected_id,omitempty"`
	// Count is the number of cached items after the change
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// Handler receives cache events
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// EventBus dispatches events synchronously, in subscription order.
// A panicking handler is logged and skipped; it never reaches the publisher.
// One bus can be shared by the coordinators of a session.
type EventBus struct {
	log    logger.Logger
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewEventBus creates an empty bus. Handler panics are reported to log, or
// to the process logger when log is nil.
func NewEventBus(log logger.Logger) *EventBus {
	return &EventBus{log: logger.OrGlobal(log)}
}

// Subscribe registers h. The returned func removes it and may be called more than once.
func (b *EventBus) Subscribe(h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every current subscriber
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(s, e)
	}
}

func (b *EventBus) dispatch(s subscription, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("cache event handler panicked",
				zap.String("entity", e.Entity),
				zap.String("source", string(e.Source)),
				zap.Uint64("subscriber", s.id),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.h(e)
}

// Len returns the number of subscribers
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
