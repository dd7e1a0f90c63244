package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber buffer capacity when none is
// configured.
const DefaultBufferSize = 64

// errorLogInterval throttles handler-error logging: the first failure is
// logged, then every errorLogInterval-th after that.
const errorLogInterval = 100

// Handler receives published events. Handlers run on the subscriber's own
// goroutine; a panicking handler is recovered and counted, never propagated.
type Handler func(Event)

// Bus fans pipeline events out to registered subscribers. Each subscriber
// owns a goroutine fed by a bounded buffer; on overflow the oldest buffered
// event for that subscriber is dropped and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	bufferSize  int
	closed      bool
}

type subscriber struct {
	id      uint64
	ch      chan Event
	done    chan struct{}
	handler Handler

	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewBus creates a bus with the given per-subscriber buffer capacity.
// A non-positive capacity falls back to DefaultBufferSize.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a handler and returns its subscription id.
func (b *Bus) Subscribe(handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:      b.nextID,
		ch:      make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.subscribers[sub.id] = sub
	go sub.run()
	return sub.id
}

// Unsubscribe removes a subscriber and stops its delivery goroutine.
// Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish delivers the event to every subscriber's buffer. Publication never
// blocks: a full buffer sheds its oldest event first.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.offer(event)
	}
}

// Close stops all subscriber goroutines. The bus must not be used after.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.done)
		delete(b.subscribers, id)
	}
}

// DroppedCount returns how many events were shed for the subscriber.
// Returns 0 for unknown ids.
func (b *Bus) DroppedCount(id uint64) uint64 {
	b.mu.RLock()
	sub, ok := b.subscribers[id]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return sub.dropped.Load()
}

// offer enqueues the event, dropping the subscriber's oldest buffered event
// when the buffer is full.
func (s *subscriber) offer(event Event) {
	select {
	case s.ch <- event:
		return
	default:
	}

	// Buffer full: shed the oldest entry, then retry once. If the
	// subscriber drained the buffer in between, the retry simply succeeds.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

// run delivers buffered events to the handler until unsubscribed.
func (s *subscriber) run() {
	for {
		select {
		case event := <-s.ch:
			s.deliver(event)
		case <-s.done:
			return
		}
	}
}

// deliver invokes the handler, isolating panics so one bad subscriber
// cannot take down the others or the pipeline.
func (s *subscriber) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			n := s.handlerErrors.Add(1)
			if n == 1 || n%errorLogInterval == 0 {
				slog.Error("Observer handler panicked",
					"subscription_id", s.id,
					"event_type", event.Type,
					"request_id", event.RequestID,
					"error_count", n,
					"panic", r)
			}
		}
	}()
	s.handler(event)
}
