// Package realtime delivers room broadcasts to connected clients, either in-process or across instances via Redis pubsub.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/victornm/clueboard/internal/domain"
)

const subscriberBuffer = 32

// Publisher sends an encoded notification to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Channel names the broadcast channel of a room for one role.
func Channel(prefix, code string, role domain.Role) string {
	return fmt.Sprintf("%s:room:%s:%s", prefix, code, role)
}

// Hub is an in-process pub/sub keyed by channel.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives every payload published on the given channel.
func (h *Hub) Subscribe(channel string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan []byte]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes ch from the channel's subscribers.
func (h *Hub) Unsubscribe(channel string, ch chan []byte) {
	h.mu.Lock()
	delete(h.subs[channel], ch)
	if len(h.subs[channel]) == 0 {
		delete(h.subs, channel)
	}
	h.mu.Unlock()
}

// Publish never blocks: a subscriber whose buffer is full misses the payload.
// Snapshots are versioned so a client recovers on the next one.
func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}

	return nil
}

// Subscribers returns the number of local subscribers of the channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[channel])
}
