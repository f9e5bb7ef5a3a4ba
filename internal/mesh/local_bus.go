package mesh

import (
	"context"
	"sync"
	"time"
)

// LocalBus delivers events to in-process handlers, each on its own goroutine.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
	closed   bool
	inflight sync.WaitGroup
}

func NewLocalBus() *LocalBus { return &LocalBus{handlers: map[string]map[int]Handler{}} }

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	// handlers outlive the publishing request; keep its values but not its deadline
	hctx := context.WithoutCancel(ctx)
	for _, h := range b.handlers[e.Topic] {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			h(hctx, e)
		}(h)
	}
	return nil
}

func (b *LocalBus) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = map[int]Handler{}
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}, nil
}

func (b *LocalBus) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
