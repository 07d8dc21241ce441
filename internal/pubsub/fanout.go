// Package pubsub is the in-process event fanout behind GraphQL subscriptions.
//
// Delivery is best effort: Publish never blocks, a subscriber with a full
// buffer misses the event, and nothing is replayed or persisted.
package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/library-server/internal/id"
)

// Topic names an event stream.
type Topic string

// Topics.
const (
	TopicBookAdded Topic = "BOOK_ADDED"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// ErrClosed is returned by Subscribe after Shutdown.
var ErrClosed = errors.New("pubsub: fanout is shut down")

// Fanout delivers payloads of type T to the current subscribers of a topic.
type Fanout[T any] struct {
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[Topic]map[string]*Subscription[T]
	closed bool
}

// Option configures a Fanout.
type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// New creates a Fanout.
func New[T any](logger *slog.Logger, opts ...Option) *Fanout[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fanout[T]{
		logger: logger,
		buffer: o.buffer,
		subs:   make(map[Topic]map[string]*Subscription[T]),
	}
}

// Subscription is one live registration. Its channel is closed when the
// subscription ends.
type Subscription[T any] struct {
	ConnectedAt time.Time
	ID          string
	Topic       Topic

	ch     chan T
	fanout *Fanout[T]
	once   sync.Once

	mu     sync.Mutex // guards stop and closed
	stop   func() bool
	closed bool
}

// C returns the event channel.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		stop := s.stop
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		s.fanout.remove(s)
	})
}

// Subscribe registers for topic from now on. The subscription ends when ctx
// is done, Close is called, or the fanout shuts down.
func (f *Fanout[T]) Subscribe(ctx context.Context, topic Topic) (*Subscription[T], error) {
	subID, err := id.Generate(id.PrefixSubscription)
	if err != nil {
		return nil, err
	}

	sub := &Subscription[T]{
		ConnectedAt: time.Now(),
		ID:          subID,
		Topic:       topic,
		ch:          make(chan T, f.buffer),
		fanout:      f,
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[string]*Subscription[T])
	}
	f.subs[topic][sub.ID] = sub
	total := len(f.subs[topic])
	f.mu.Unlock()

	// Shutdown or a done ctx may close sub before the AfterFunc is stored.
	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		stop()
	} else {
		sub.stop = stop
		sub.mu.Unlock()
	}

	f.logger.Debug("subscriber added",
		slog.String("subscription_id", sub.ID),
		slog.String("topic", string(topic)),
		slog.Int("subscribers", total))

	return sub, nil
}

// remove deletes sub and closes its channel exactly once.
func (f *Fanout[T]) remove(sub *Subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subs[sub.Topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(f.subs, sub.Topic)
	}
	close(sub.ch)

	f.logger.Debug("subscriber removed",
		slog.String("subscription_id", sub.ID),
		slog.String("topic", string(sub.Topic)),
		slog.Duration("connected_for", time.Since(sub.ConnectedAt)))
}

// Publish hands payload to every current subscriber of topic without
// blocking and returns how many received it.
func (f *Fanout[T]) Publish(topic Topic, payload T) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return 0
	}

	var delivered, dropped int
	for _, sub := range f.subs[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			dropped++
			f.logger.Warn("dropped event for slow subscriber",
				slog.String("subscription_id", sub.ID),
				slog.String("topic", string(topic)))
		}
	}

	if delivered > 0 || dropped > 0 {
		f.logger.Debug("event published",
			slog.String("topic", string(topic)),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (f *Fanout[T]) Subscribers(topic Topic) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[topic])
}

// Total returns the number of live subscriptions across all topics.
func (f *Fanout[T]) Total() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, subs := range f.subs {
		n += len(subs)
	}
	return n
}

// Shutdown closes every subscription. Later Subscribe calls fail and
// Publish becomes a no-op.
func (f *Fanout[T]) Shutdown() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true

	var all []*Subscription[T]
	for _, subs := range f.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}

	f.logger.Info("fanout shut down", slog.Int("closed_subscriptions", len(all)))
}
