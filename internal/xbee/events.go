package xbee

import "sync"

// DeviceEventType identifies what changed in a DeviceEvent.
type DeviceEventType string

const (
	// EventIdentityUpdated fires after Initialize/Identify fetches or
	// refreshes any identity field.
	EventIdentityUpdated DeviceEventType = "identity_updated"
	// EventIOSample fires whenever GetIOSample obtains a fresh IOSample.
	// GetDIO and GetADC also read a sample but do not publish it.
	EventIOSample DeviceEventType = "io_sample"
)

// DeviceEvent is published by a LocalDevice or RemoteDevice whenever its
// cached identity changes or a new IO sample becomes available. Addr64 is
// the publishing device's address, so a single bridge subscribed to
// several devices can tell them apart.
type DeviceEvent struct {
	Type     DeviceEventType
	Addr64   Addr64
	Identity DeviceIdentity
	Sample   *IOSample
}

// DeviceEventHandler receives published events. It must not block or
// retain the *IOSample pointer beyond the call.
type DeviceEventHandler func(DeviceEvent)

// EventBus is a minimal synchronous pub/sub hub for DeviceEvents.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[uint64]DeviceEventHandler
	nextID   uint64
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[uint64]DeviceEventHandler)}
}

// OnAll registers a handler for every event. Returns an unsubscribe
// function safe to call more than once.
func (b *EventBus) OnAll(handler DeviceEventHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Emit calls every registered handler with event, synchronously, in the
// caller's goroutine. A panicking handler is recovered so one bad
// subscriber cannot take down the caller (a command path such as
// Initialize or GetIOSample).
func (b *EventBus) Emit(event DeviceEvent) {
	b.mu.RLock()
	handlers := make([]DeviceEventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func(h DeviceEventHandler) {
			defer func() { recover() }()
			h(event)
		}(h)
	}
}
