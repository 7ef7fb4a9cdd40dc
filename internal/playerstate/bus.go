package playerstate

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"faceplate/internal/logging"
)

// Event is a single change notification produced by the engine.
type Event struct {
	Name    EventName
	Payload any
	At      time.Time
}

// Listener receives events delivered by a Bus.
type Listener func(Event)

// Subscription identifies a registered listener.
type Subscription uint64

type subscriber struct {
	id   Subscription
	name EventName
	all  bool
	fn   Listener
}

// Bus fans events out to listeners in registration order.
//
// Events are queued and drained by whichever caller finds the bus idle, so a
// listener may publish or call back into the engine without deadlocking; the
// nested events are delivered after the current one.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   Subscription
	subs     []subscriber
	queue    []Event
	draining bool
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logging.NewComponentLogger(logger, "event-bus")}
}

// Subscribe registers fn for events with the given name.
func (b *Bus) Subscribe(name EventName, fn Listener) Subscription {
	return b.add(subscriber{name: name, fn: fn})
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Listener) Subscription {
	return b.add(subscriber{all: true, fn: fn})
}

func (b *Bus) add(sub subscriber) Subscription {
	if b == nil || sub.fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	return sub.id
}

// Unsubscribe removes a listener. It reports whether the subscription existed.
func (b *Bus) Unsubscribe(id Subscription) bool {
	if b == nil || id == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id != id {
			continue
		}
		b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
		return true
	}
	return false
}

// Publish queues evt and delivers everything pending.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.enqueue(evt)
	b.drain()
}

func (b *Bus) enqueue(events ...Event) {
	if b == nil || len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, events...)
	b.mu.Unlock()
}

func (b *Bus) drain() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for len(b.queue) > 0 {
		evt := b.queue[0]
		b.queue = b.queue[1:]
		listeners := b.matching(evt.Name)
		b.mu.Unlock()
		for _, sub := range listeners {
			b.deliver(sub, evt)
		}
		b.mu.Lock()
	}
	b.queue = nil
	b.draining = false
	b.mu.Unlock()
}

func (b *Bus) matching(name EventName) []subscriber {
	out := make([]subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.all || sub.name == name {
			out = append(out, sub)
		}
	}
	return out
}

func (b *Bus) deliver(sub subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(b.logger, "event listener panicked", "listener_panic",
				logging.String(logging.FieldEvent, string(evt.Name)),
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "fix the listener; other listeners still received the event"),
				logging.String(logging.FieldImpact, "one consumer missed this change"),
			)
		}
	}()
	sub.fn(evt)
}
