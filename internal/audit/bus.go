package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/google/uuid"
)

// Emitter is what the services depend on.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Listener receives events. A returned error is logged by the bus and
// otherwise ignored.
type Listener interface {
	HandleEvent(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, e Event) error { return f(ctx, e) }

// ListenerID is the handle returned by Subscribe.
type ListenerID uint64

type subscription struct {
	id ListenerID
	l  Listener
}

// Bus fans events out to listeners synchronously, in subscription order.
// Listeners run without the bus lock held, so they may emit events of
// their own or subscribe and unsubscribe.
type Bus struct {
	mu     sync.RWMutex
	nextID ListenerID
	subs   []subscription
	closed bool

	log logging.Logger
	now func() time.Time
}

// NewBus creates a bus that reports listener failures to log.
func NewBus(log logging.Logger) *Bus {
	return &Bus{
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (b *Bus) Subscribe(l Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, l: l})
	return b.nextID
}

// Unsubscribe removes a listener and reports whether it was registered.
func (b *Bus) Unsubscribe(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit fills in the event id, timestamp and detail version when they are
// unset and delivers the event to every listener. It never fails.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if e.Detail.Version == 0 {
		e.Detail.Version = DetailVersion
	}

	for _, s := range subs {
		b.deliver(ctx, s, e)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(ctx, "audit listener panicked",
				"listener_id", s.id, "kind", string(e.Kind), "panic", fmt.Sprint(r))
		}
	}()
	if err := s.l.HandleEvent(ctx, e); err != nil {
		b.log.Error(ctx, "audit listener failed",
			"listener_id", s.id, "kind", string(e.Kind), "error", err)
	}
}

// Close drops all listeners; later events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Discard is an Emitter that drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
