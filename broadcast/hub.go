package broadcast

import (
	"context"
	"sync"
)

// Hub is an in-process publisher that fans events out to local subscribers,
// such as open dashboard streams.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	next   uint64
	buffer int
	closed bool

	// OnDrop, when set, is called for every event a full subscriber misses.
	OnDrop func(topic string)
}

type subscription struct {
	topic string
	ch    chan Event
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
	}
}

// Publish delivers ev to every subscriber of topic without blocking.
func (h *Hub) Publish(_ context.Context, topic string, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if h.OnDrop != nil {
				h.OnDrop(topic)
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber for topic. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = &subscription{topic: topic, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.closed = true
}
