// Package events carries domain events fanned out to in-process consumers.
package events

import (
	"sync"

	"github.com/zenlend/zenlend/internal/domain"
)

// PriceBroadcaster fans out price observations to all subscribers via
// buffered channels. Slow readers are dropped rather than blocking the
// feed, so a stuck dashboard can never stall price delivery.
type PriceBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.PricePoint]struct{}
	buffer int
}

// NewPriceBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewPriceBroadcaster(buffer int) *PriceBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &PriceBroadcaster{
		subs:   make(map[chan domain.PricePoint]struct{}),
		buffer: buffer,
	}
}

// Publish sends the observation to all subscribers, dropping if a reader is slow.
func (b *PriceBroadcaster) Publish(p domain.PricePoint) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- p:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives observations until Unsubscribe is called.
func (b *PriceBroadcaster) Subscribe() chan domain.PricePoint {
	ch := make(chan domain.PricePoint, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *PriceBroadcaster) Unsubscribe(ch chan domain.PricePoint) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
