// internal/broker/memory.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryFanout is an in-process stand-in for Fanout with the same
// at-most-once semantics: facts reach only the handlers subscribed at the
// moment of publication, synchronously, and are never replayed.
type MemoryFanout struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

func NewMemoryFanout() *MemoryFanout {
	return &MemoryFanout{handlers: make(map[int]Handler)}
}

func (f *MemoryFanout) Publish(ctx context.Context, fact Fact) error {
	d, err := encode(fact)
	if err != nil {
		return err
	}

	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		// A failing subscriber loses the fact, as with a rejected AMQP message.
		_ = h(ctx, d)
	}
	return nil
}

// Subscribe registers h and returns a func that removes it.
func (f *MemoryFanout) Subscribe(h Handler) (unsubscribe func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = h
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

// MemoryQueue is an in-process stand-in for DurableQueue. It retains every
// published fact until drained.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []Delivery
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Publish(_ context.Context, fact Fact) error {
	d, err := encode(fact)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.messages = append(q.messages, d)
	q.mu.Unlock()
	return nil
}

// Drain returns and removes all retained messages.
func (q *MemoryQueue) Drain() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.messages
	q.messages = nil
	return out
}

// encode mirrors the wire round trip so consumers see exactly what they
// would receive from RabbitMQ.
func encode(fact Fact) (Delivery, error) {
	body, err := json.Marshal(fact)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal fact: %w", err)
	}
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Delivery{}, fmt.Errorf("unmarshal fact: %w", err)
	}
	return d, nil
}
