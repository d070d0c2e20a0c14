// Package eventbus fans execution lifecycle events out to subscribers.
// Publishing never blocks the engine: each subscriber owns a bounded
// buffer and slow consumers lose events rather than stalling a dispatch.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openfleet/flowcore/types"
)

const defaultBuffer = 64

// Bus is a typed publish/subscribe channel over the closed event variant
// set in types.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]*subscription
	logger  *zap.Logger
	dropped func(types.EventType) // optional drop hook for metrics
}

type subscription struct {
	ch    chan types.Event
	kinds map[types.EventType]bool // nil means all kinds
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[int]*subscription),
		logger: logger.With(zap.String("component", "eventbus")),
	}
}

// OnDrop registers a hook invoked when a subscriber buffer overflows.
func (b *Bus) OnDrop(fn func(types.EventType)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = fn
}

// Subscribe registers a listener for the given event kinds (all kinds when
// none are named). The returned cancel func closes the channel and must be
// called exactly once.
func (b *Bus) Subscribe(kinds ...types.EventType) (<-chan types.Event, func()) {
	sub := &subscription{ch: make(chan types.Event, defaultBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[types.EventType]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber without
// blocking. Overfull subscriber buffers drop the event.
func (b *Bus) Publish(event types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			if b.dropped != nil {
				b.dropped(event.Type)
			}
			b.logger.Warn("subscriber buffer full, dropping event",
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}
