// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
)

// ErrClosed is returned by Publish once the bus has been shut down.
var ErrClosed = errors.New("event bus is shut down")

// Event is a payload that can travel on the bus. The api/schemas event types
// implement it.
type Event interface {
	EventType() schemas.EventType
}

// Message wraps one published event.
type Message struct {
	ID        string
	Timestamp time.Time
	Event     Event
}

// Type is the event type of the wrapped payload.
func (m Message) Type() schemas.EventType { return m.Event.EventType() }

// Handler processes a delivered message. Each subscription calls its handler
// from a single goroutine, in publish order.
type Handler func(Message)

// Publisher is the side of the bus used by the monitor and the filler.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type subscription struct {
	types map[schemas.EventType]struct{}
	fn    Handler
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) stop() { s.once.Do(func() { close(s.done) }) }

// run hands messages to the handler until stopped, then drains what was
// already accepted.
func (s *subscription) run() {
	for {
		select {
		case msg := <-s.ch:
			s.fn(msg)
		case <-s.done:
			for {
				select {
				case msg := <-s.ch:
					s.fn(msg)
				default:
					return
				}
			}
		}
	}
}

// Bus is an in-process pub/sub channel for scan and fill notifications.
// Publishers block while a subscriber's buffer is full.
type Bus struct {
	logger     *zap.Logger
	bufferSize int

	mu     sync.RWMutex
	subs   []*subscription
	closed bool

	posts    sync.WaitGroup
	handlers sync.WaitGroup
	quit     chan struct{}
	once     sync.Once
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus whose subscriptions buffer bufferSize messages each.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:     logger.Named("events"),
		bufferSize: bufferSize,
		quit:       make(chan struct{}),
	}
}

// Publish delivers ev to every subscription that asked for its type.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev == nil {
		return errors.New("cannot publish a nil event")
	}
	kind := ev.EventType()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.posts.Add(1)
	var targets []*subscription
	for _, s := range b.subs {
		if _, ok := s.types[kind]; ok {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()
	defer b.posts.Done()

	if len(targets) == 0 {
		return nil
	}
	msg := Message{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Event: ev}
	b.logger.Debug("Publishing event.", zap.String("type", string(kind)), zap.String("id", msg.ID), zap.Int("subscribers", len(targets)))

	for _, s := range targets {
		select {
		case s.ch <- msg:
		case <-s.done:
			// Unsubscribed while we were waiting.
		case <-ctx.Done():
			return ctx.Err()
		case <-b.quit:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe calls fn for every published event of the given types. The
// returned function cancels the subscription; events it had already accepted
// are still handled.
func (b *Bus) Subscribe(fn Handler, types ...schemas.EventType) (unsubscribe func()) {
	if len(types) == 0 {
		panic("events: subscribe needs at least one event type")
	}
	s := &subscription{
		types: make(map[schemas.EventType]struct{}, len(types)),
		fn:    fn,
		ch:    make(chan Message, b.bufferSize),
		done:  make(chan struct{}),
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, s)
	b.handlers.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.handlers.Done()
		s.run()
	}()

	return func() {
		b.mu.Lock()
		for i, other := range b.subs {
			if other == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		s.stop()
	}
}

// Shutdown rejects new events, waits for in-flight publishes, and returns once
// every handler has processed what it accepted. Safe to call more than once.
func (b *Bus) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		subs := b.subs
		b.subs = nil
		b.mu.Unlock()

		close(b.quit)
		b.posts.Wait()
		for _, s := range subs {
			s.stop()
		}
		b.handlers.Wait()
		b.logger.Debug("Event bus shut down.", zap.Int("subscriptions", len(subs)))
	})
}
