// Copyright Contributors to the ingestctl project

// Package eventbus is the synchronous in-process publish/subscribe
// mechanism the manager and orchestrator use to announce lifecycle
// events (a task was scheduled, a run completed, a webhook delivery
// arrived). Listeners run synchronously, in registration order, on the
// publishing goroutine; a panicking listener is recovered and logged
// so it cannot take down the orchestrator run that published the
// event.
package eventbus

import (
	"sync"

	"github.com/go-logr/logr"
)

// EventType names one of the lifecycle events the bus carries.
type EventType string

const (
	EventTaskScheduled    EventType = "TaskScheduled"
	EventTaskUpdated      EventType = "TaskUpdated"
	EventTaskDeleted      EventType = "TaskDeleted"
	EventTaskTriggered    EventType = "TaskTriggered"
	EventDataFetched      EventType = "DataFetched"
	EventDataTransformed  EventType = "DataTransformed"
	EventDataProcessed    EventType = "DataProcessed"
	EventTaskCompleted    EventType = "TaskCompleted"
	EventTaskFailed       EventType = "TaskFailed"
)

// Event is a single published occurrence. Payload's concrete type is
// event-specific (callers type-assert); see the doc comment on each
// EventType constant's publisher for what it carries.
type Event struct {
	Type    EventType
	TaskID  string
	Payload any
}

// Listener receives every Event published after it is registered,
// filtered by the EventType it registered for.
type Listener func(Event)

// Bus is a synchronous multi-producer multi-consumer event dispatcher.
// The zero value is not usable; construct with New.
type Bus struct {
	log logr.Logger

	mu        sync.RWMutex
	listeners map[EventType][]Listener
}

// New returns an empty Bus.
func New(log logr.Logger) *Bus {
	return &Bus{
		log:       log,
		listeners: make(map[EventType][]Listener),
	}
}

// Subscribe registers fn to run for every future Publish of eventType,
// after every listener already registered for that type.
func (b *Bus) Subscribe(eventType EventType, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], fn)
}

// Publish invokes every listener registered for ev.Type, in
// registration order, on the calling goroutine. A listener that panics
// is recovered and logged; it does not prevent later listeners from
// running and does not propagate to the caller.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	fns := make([]Listener, len(b.listeners[ev.Type]))
	copy(fns, b.listeners[ev.Type])
	b.mu.RUnlock()

	for _, fn := range fns {
		b.invoke(fn, ev)
	}
}

func (b *Bus) invoke(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(nil, "eventbus listener panicked", "eventType", ev.Type, "taskId", ev.TaskID, "panic", r)
		}
	}()
	fn(ev)
}
