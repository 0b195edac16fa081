package notify

import (
	"context"
	"sync"
)

var _ Bus = (*MemoryBus)(nil)

// MemoryBus is the single-process Bus. Sends are non-blocking: a subscriber
// that falls behind loses events and catches up via its polling fallback.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{} // groupID -> subscriber channels
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan Event]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.GroupID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, groupID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[groupID] == nil {
		b.subs[groupID] = make(map[chan Event]struct{})
	}
	b.subs[groupID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[groupID]
		if !ok {
			return // already removed by Close or an earlier cancel
		}
		if _, ok := set[ch]; !ok {
			return
		}
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, groupID)
		}
		close(ch)
	}
	return ch, cancel
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = make(map[string]map[chan Event]struct{})
	return nil
}
