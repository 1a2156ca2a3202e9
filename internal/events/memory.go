package events

import (
	"context"
	"sync"
)

// InMemory fans every message out to all current subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the message.
type InMemory struct {
	size int

	mu   sync.RWMutex
	subs map[chan Message]struct{}
}

// NewInMemory creates a bus whose subscribers buffer up to size messages.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{size: size, subs: make(map[chan Message]struct{})}
}

// Publish delivers msg to every subscriber with room for it.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	for ch := range q.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber until ctx is done.
func (q *InMemory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, q.size)
	q.mu.Lock()
	q.subs[ch] = struct{}{}
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.mu.Lock()
		delete(q.subs, ch)
		close(ch)
		q.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers reports how many subscribers are attached.
func (q *InMemory) Subscribers() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.subs)
}
