package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type subscription struct {
	id      uint64
	topic   string
	handler Handler
	ch      chan Event
}

// MemoryBus delivers events in-process. Every subscriber owns a bounded
// buffer drained by its own goroutine; a full buffer drops the event instead
// of blocking the publisher.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	nextID  uint64
	buffer  int
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	logger  *logrus.Logger
}

func NewMemoryBus(buffer int, logger *logrus.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MemoryBus{
		subs:   make(map[string][]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := newEvent(topic, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.WithFields(logrus.Fields{
				"topic":        topic,
				"subscription": sub.id,
			}).Warn("event buffer full, dropping event")
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		topic:   topic,
		handler: h,
		ch:      make(chan Event, b.buffer),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range sub.ch {
			sub.handler(context.Background(), event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *MemoryBus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Close stops accepting events and waits for buffered events to be handled.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Dropped is the number of events discarded because a subscriber was full.
func (b *MemoryBus) Dropped() int64 {
	return b.dropped.Load()
}
