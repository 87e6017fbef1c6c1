package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"chatserver/internal/protocol"
)

// busCapacity bounds the per-subscriber backlog. A subscriber that falls
// behind loses its oldest undelivered packet rather than stalling the
// publisher — see Bus.Publish.
const busCapacity = 32

// Event is the union of packet kinds that travel over a Bus: a chat/system
// Message, or a Connected marker that arms a freshly spawned subscriber for
// broadcast forwarding.
type Event struct {
	Connected bool
	Message   protocol.Message
}

// Bus is a multi-producer/multi-subscriber broadcast queue with bounded
// per-subscriber backlog. It stands in for the tokio::sync::broadcast
// channel of the design this server is modeled on: every live Subscription
// receives every event published after it subscribed, and a slow subscriber
// drops its oldest pending event instead of blocking Publish.
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
}

// NewBus creates an empty Bus with the default per-subscriber backlog.
func NewBus() *Bus {
	return NewBusWithCapacity(busCapacity)
}

// NewBusWithCapacity creates an empty Bus with a caller-chosen per-subscriber
// backlog, so operators can tune per-channel backpressure without touching
// the default.
func NewBusWithCapacity(capacity int) *Bus {
	return &Bus{subs: make(map[*Subscription]struct{}), capacity: capacity}
}

// Subscription is one live subscriber's view of a Bus.
type Subscription struct {
	bus    *Bus
	ch     chan Event
	lagged atomic.Uint64
}

// Subscribe registers a new Subscription on b. Callers must call Close when
// done (the subscriber task exiting via cancellation).
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan Event, b.capacity)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close unregisters s from its Bus. Safe to call more than once.
func (s *Subscription) Close() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}

// Lagged reports how many events s has lost to backpressure so far.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// Recv blocks until an event is available or done fires (the subscriber's
// own cancellation signal, distinct from ctx which is typically the process
// lifetime) so a channel migration can tear a subscription down promptly
// without draining the bus.
func (s *Subscription) Recv(ctx context.Context, done <-chan struct{}) (Event, bool) {
	select {
	case e := <-s.ch:
		return e, true
	case <-done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Publish enqueues evt to every live subscription. A subscription whose
// backlog is full drops its oldest pending event and records a lag count;
// Publish itself never blocks on a slow subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(evt)
	}
}

// PublishMessage is a convenience wrapper around Publish for Message events.
func (b *Bus) PublishMessage(msg protocol.Message) {
	b.Publish(Event{Message: msg})
}

// PublishConnected is a convenience wrapper around Publish for the Connected
// marker.
func (b *Bus) PublishConnected() {
	b.Publish(Event{Connected: true})
}

func (s *Subscription) push(evt Event) {
	for {
		select {
		case s.ch <- evt:
			return
		default:
		}
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
			// Another goroutine drained it between our two selects; retry
			// the send.
		}
	}
}
