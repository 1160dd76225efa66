package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisBus fans events out through one Redis PUBLISH/SUBSCRIBE channel so
// every gateway replica sees them. Handlers run on the receive goroutine.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBus(ctx context.Context, client *redis.Client, channel string, logger *logrus.Logger) (*RedisBus, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	pubsub := client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		client:   client,
		channel:  channel,
		logger:   logger,
		handlers: make(map[string]map[uint64]Handler),
		pubsub:   pubsub,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go b.receive(loopCtx)
	return b, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := newEvent(topic, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]Handler)
	}
	b.handlers[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

func (b *RedisBus) receive(ctx context.Context) {
	defer close(b.done)
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.WithError(err).WithField("channel", msg.Channel).Warn("discarding malformed event")
				continue
			}
			b.dispatch(ctx, event)
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Topic]))
	for _, h := range b.handlers[event.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

func (b *RedisBus) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	<-b.done
	return err
}
