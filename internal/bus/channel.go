package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ChannelBus is the in-process event bus used when Harrier runs as a
// single binary. Each subscription gets its own buffered queue and
// goroutine, so a slow rescoring handler never blocks the API.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	topics     map[string]map[string]*channelSubscription
	closed     bool

	handlers  sync.WaitGroup
	dropped   atomic.Int64
	delivered atomic.Int64
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	queue   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a bus whose subscriptions each buffer bufferSize
// messages (1000 when unset).
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     make(map[string]map[string]*channelSubscription),
	}
}

// Publish queues the message for every subscriber of the topic without
// blocking. A subscriber whose queue is full misses the message.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := validateTopic(topic); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := newMessage(ctx, topic, payload)
	for _, sub := range b.topics[topic] {
		select {
		case sub.queue <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber queue full, message dropped",
				"topic", topic,
				"subscription_id", sub.id,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe registers a handler. Messages reach it one at a time until ctx
// ends, Unsubscribe is called or the bus closes.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := validateTopic(topic); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		queue:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*channelSubscription)
	}
	b.topics[topic][sub.id] = sub

	b.handlers.Add(1)
	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	defer s.bus.handlers.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			s.deliver(msg)
		}
	}
}

// deliver runs the handler, keeping the subscription alive across panics.
func (s *channelSubscription) deliver(msg *domain.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panicked",
				"topic", s.topic,
				"message_id", msg.ID,
				"error", fmt.Sprint(rec),
			)
		}
	}()

	s.bus.delivered.Add(1)
	if err := s.handler(s.ctx, msg); err != nil {
		slog.Error("handler error",
			"topic", s.topic,
			"message_id", msg.ID,
			"trace_id", msg.Metadata[MetaTraceID],
			"error", err,
		)
	}
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Delivered returns how many messages have been handed to handlers.
func (b *ChannelBus) Delivered() int64 {
	return b.delivered.Load()
}

// Ping reports whether the bus still accepts messages.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close cancels every subscription and waits for running handlers to return.
// Queued messages that were not yet picked up are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.topics = make(map[string]map[string]*channelSubscription)
	b.mu.Unlock()

	b.handlers.Wait()
	return nil
}

// Unsubscribe stops delivery to this subscription.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if subs := s.bus.topics[s.topic]; subs != nil {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.bus.topics, s.topic)
		}
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
