package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers events asynchronously to subscribers in publish order.
// Publishing never blocks: when the buffer is full the event is dropped and
// the OnDrop hooks fire. A nil *EventBus discards everything.
type EventBus struct {
	ch chan envelope

	mu       sync.RWMutex
	handlers map[Event][]func(any)

	hooks hooks
}

// hooks holds the lifecycle hook state for the EventBus.
type hooks struct {
	mu          sync.RWMutex
	onPublish   []func(Event, any)
	onDrop      []func(Event, any)
	onSubscribe []func(Event)
	onPanic     []func(Event, any, any)
}

// New creates a bus with the given buffer size. Call Start to begin delivery.
func New(buffer int) *EventBus {
	return &EventBus{
		ch:       make(chan envelope, buffer),
		handlers: make(map[Event][]func(any)),
	}
}

// Start delivers events until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

// OnPublish registers a hook that fires after an event is successfully enqueued.
func (bus *EventBus) OnPublish(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPublish = append(bus.hooks.onPublish, fn)
	bus.hooks.mu.Unlock()
}

// OnDrop registers a hook that fires when an event is dropped due to a full buffer.
func (bus *EventBus) OnDrop(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onDrop = append(bus.hooks.onDrop, fn)
	bus.hooks.mu.Unlock()
}

// OnSubscribe registers a hook that fires after a subscriber is registered.
func (bus *EventBus) OnSubscribe(fn func(Event)) {
	bus.hooks.mu.Lock()
	bus.hooks.onSubscribe = append(bus.hooks.onSubscribe, fn)
	bus.hooks.mu.Unlock()
}

// OnPanic registers a hook that fires when a subscriber panics.
func (bus *EventBus) OnPanic(fn func(Event, any, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPanic = append(bus.hooks.onPanic, fn)
	bus.hooks.mu.Unlock()
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.handlers[event] = append(bus.handlers[event], fn)
	bus.mu.Unlock()

	bus.hooks.mu.RLock()
	hooks := append([]func(Event){}, bus.hooks.onSubscribe...)
	bus.hooks.mu.RUnlock()
	for _, h := range hooks {
		h(event)
	}
}

func (bus *EventBus) send(event Event, payload any) {
	if bus == nil {
		return
	}
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		bus.fire(bus.hooksFor(&bus.hooks.onPublish), event, payload)
	default:
		bus.fire(bus.hooksFor(&bus.hooks.onDrop), event, payload)
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	handlers := append([]func(any){}, bus.handlers[env.event]...)
	bus.mu.RUnlock()

	for _, fn := range handlers {
		bus.call(env, fn)
	}
}

// call runs one subscriber, isolating the bus from its panics.
func (bus *EventBus) call(env envelope, fn func(any)) {
	defer func() {
		if r := recover(); r != nil {
			bus.runOnPanic(env.event, env.payload, r)
		}
	}()
	fn(env.payload)
}

func (bus *EventBus) hooksFor(list *[]func(Event, any)) []func(Event, any) {
	bus.hooks.mu.RLock()
	defer bus.hooks.mu.RUnlock()
	return append([]func(Event, any){}, (*list)...)
}

func (bus *EventBus) fire(hooks []func(Event, any), event Event, payload any) {
	for _, fn := range hooks {
		fn(event, payload)
	}
}

func (bus *EventBus) runOnPanic(event Event, payload any, recovered any) {
	bus.hooks.mu.RLock()
	hooks := append([]func(Event, any, any){}, bus.hooks.onPanic...)
	bus.hooks.mu.RUnlock()
	for _, fn := range hooks {
		func() {
			defer func() { recover() }() //nolint:errcheck
			fn(event, payload, recovered)
		}()
	}
}
