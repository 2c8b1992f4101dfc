// Package localbus is an in-memory api.EventBus fake: every Publish
// fans out to every currently-subscribed channel, standing in for
// whatever real pub/sub transport carries committed Metadata around a
// deployed cluster.
package localbus

import (
	"context"
	"sync"

	"github.com/nordhaven/rsmcore/api"
)

type Bus struct {
	mu   sync.Mutex
	subs map[chan api.Metadata]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[chan api.Metadata]struct{})}
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan api.Metadata, func()) {
	ch := make(chan api.Metadata, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers md to every current subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the publisher.
func (b *Bus) Publish(md api.Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- md:
		default:
		}
	}
}
