package perfgate

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names the events the engine publishes.
type EventType string

const (
	EventViolation         EventType = "violation"
	EventRecovery          EventType = "recovery"
	EventDegradationChange EventType = "degradationChange"
)

// Event is delivered synchronously to subscribers on the recording path.
type Event struct {
	Type      EventType `json:"type"`
	Budget    string    `json:"budget,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Violation is set on violation and recovery events.
	Violation *ViolationRecord `json:"violation,omitempty"`
	// Degradation is set on degradationChange events.
	Degradation *DegradationState `json:"degradation,omitempty"`
}

// eventBus is a synchronous in-process pub/sub. A panicking subscriber is
// caught and logged; it never aborts delivery to remaining subscribers or
// propagates into the recording call path.
type eventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventType]map[int]func(Event)
	logger *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{
		subs:   make(map[EventType]map[int]func(Event)),
		logger: logger,
	}
}

// on registers a callback and returns its unsubscribe function.
func (b *eventBus) on(t EventType, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[t]
	if !ok {
		set = make(map[int]func(Event))
		b.subs[t] = set
	}
	id := b.nextID
	b.nextID++
	set[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

func (b *eventBus) emit(e Event) {
	b.mu.RLock()
	set := b.subs[e.Type]
	callbacks := make([]func(Event), 0, len(set))
	for _, fn := range set {
		callbacks = append(callbacks, fn)
	}
	b.mu.RUnlock()

	for _, fn := range callbacks {
		b.deliver(fn, e)
	}
}

func (b *eventBus) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"event", string(e.Type), "budget", e.Budget, "panic", r)
		}
	}()
	fn(e)
}
